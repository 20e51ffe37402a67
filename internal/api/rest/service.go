// Package rest exposes query templates and document indexing over HTTP.
package rest

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sheer/internal/engine"
	"sheer/internal/engine/local"
	"sheer/internal/logger"
	"sheer/internal/metrics"
	"sheer/internal/query"
	"sheer/pkg/models"
)

const jsonContentType = "application/json; charset=utf-8"

type Service struct {
	app    *query.App
	finder *query.Finder
	logger *zap.Logger
}

func NewService(app *query.App, finder *query.Finder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{app: app, finder: finder, logger: logger}
}

func (s *Service) RegisterHandlers(r *gin.Engine) {
	r.Use(s.requestLogger(), metrics.Middleware())

	r.GET("/queries", s.Templates)
	r.GET("/queries/:name", s.Search)
	r.GET("/queries/:name/raw", s.Raw)

	r.GET("/_mapping/:type", s.Mapping)
	r.DELETE("/_mapping", s.ClearMappings)

	r.PUT("/_doc/:type/:id", s.Index)
	r.POST("/_doc/:type/:id", s.Index)
	r.GET("/_doc/:type/:id", s.Get)
	r.DELETE("/_doc/:type/:id", s.Delete)
	r.POST("/_bulk", s.Bulk)
	r.GET("/_metadata", s.Metadata)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// requestLogger attaches a request-scoped logger to the request context and
// logs every completed request.
func (s *Service) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		l := s.logger.With(zap.String("method", c.Request.Method), zap.String("path", c.Request.URL.Path))
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), l))
		c.Next()
		l.Debug("request handled",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Service) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
	}
	c.JSON(status, models.ErrorResponse{Error: err.Error()})
}

func (s *Service) Templates(c *gin.Context) {
	names, err := s.finder.Names()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, models.TemplatesResponse{Templates: names})
}

// Search runs the named template with the request's query arguments and
// renders the result set with page links.
func (s *Service) Search(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := s.finder.Lookup(c.Param("name"))
	if err != nil {
		s.fail(c, http.StatusNotFound, err)
		return
	}

	req := query.RequestFromHTTP(c.Request)
	rs, err := q.SearchWithURLArguments(ctx, req, nil)
	if err != nil {
		s.fail(c, searchStatus(err), err)
		return
	}

	out, err := rs.ToSerializable(ctx)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	out["page"] = rs.CurrentPage
	if rs.HasNext() {
		out["next"] = rs.URLForPage(req, rs.CurrentPage+1)
	}
	if rs.HasPrevious() {
		out["previous"] = rs.URLForPage(req, rs.CurrentPage-1)
	}

	body, err := query.Marshal(ctx, out)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, body)
}

// Raw returns the template's default hits as plain dictionaries.
func (s *Service) Raw(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := s.finder.Lookup(c.Param("name"))
	if err != nil {
		s.fail(c, http.StatusNotFound, err)
		return
	}

	results := make([]map[string]interface{}, 0)
	for hit, err := range q.IterateResults(ctx) {
		if err != nil {
			s.fail(c, searchStatus(err), err)
			return
		}
		results = append(results, hit)
	}
	c.JSON(http.StatusOK, models.RawResultsResponse{Results: results})
}

func searchStatus(err error) int {
	switch {
	case errors.Is(err, query.ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrIndexNotFound):
		return http.StatusNotFound
	default:
		var engErr *engine.Error
		if errors.As(err, &engErr) && engErr.Status >= 400 && engErr.Status < 500 {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

// Mapping returns the mapping of a document type through the shared cache.
func (s *Service) Mapping(c *gin.Context) {
	m, err := s.app.Mappings.ForType(c.Request.Context(), c.Param("type"))
	if err != nil {
		s.fail(c, searchStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Service) ClearMappings(c *gin.Context) {
	s.app.Mappings.Clear()
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (s *Service) Index(c *gin.Context) {
	indexer, ok := s.app.Engine.(engine.Indexer)
	if !ok {
		s.fail(c, http.StatusNotImplemented, errors.New("engine does not accept documents"))
		return
	}

	docType, id := c.Param("type"), c.Param("id")
	var data models.Document
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := indexer.IndexDocument(c.Request.Context(), s.app.Index, docType, id, data); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	// a new document may widen the type's mapping
	s.app.Mappings.Clear()

	c.JSON(http.StatusOK, models.IndexResponse{Index: s.app.Index, Type: docType, ID: id, Result: "created"})
}

func (s *Service) localIndex(c *gin.Context) (*local.Index, bool) {
	eng, ok := s.app.Engine.(*local.Engine)
	if !ok {
		s.fail(c, http.StatusNotImplemented, errors.New("document access needs the local engine"))
		return nil, false
	}
	idx := eng.GetIndex(s.app.Index)
	if idx == nil {
		c.JSON(http.StatusNotFound, gin.H{"found": false})
		return nil, false
	}
	return idx, true
}

func (s *Service) Get(c *gin.Context) {
	idx, ok := s.localIndex(c)
	if !ok {
		return
	}
	docType, id := c.Param("type"), c.Param("id")

	doc, err := idx.Get(docType, id)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"found": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"_index":  s.app.Index,
		"_type":   docType,
		"_id":     id,
		"found":   true,
		"_source": doc,
	})
}

func (s *Service) Delete(c *gin.Context) {
	idx, ok := s.localIndex(c)
	if !ok {
		return
	}
	docType, id := c.Param("type"), c.Param("id")

	if err := idx.Delete(docType, id); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, models.IndexResponse{Index: s.app.Index, Type: docType, ID: id, Result: "deleted"})
}

// Bulk reads newline-delimited action/document pairs. Only the index action
// is understood; each action line names the document's _type and _id.
func (s *Service) Bulk(c *gin.Context) {
	start := time.Now()
	scanner := bufio.NewScanner(c.Request.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var docs []local.Document
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var action map[string]map[string]interface{}
		if err := json.Unmarshal(line, &action); err != nil {
			continue
		}
		meta, ok := action["index"]
		if !ok || !scanner.Scan() {
			continue
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			continue
		}
		docType, _ := meta["_type"].(string)
		id, _ := meta["_id"].(string)
		docs = append(docs, local.Document{Type: docType, ID: id, Source: doc})
	}
	if err := scanner.Err(); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	items, err := s.bulkIndex(c, docs)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.app.Mappings.Clear()

	resp := models.BulkResponse{Took: time.Since(start).Milliseconds(), Items: items}
	for _, it := range items {
		if it.Error != "" {
			resp.Errors = true
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) bulkIndex(c *gin.Context, docs []local.Document) ([]models.BulkItem, error) {
	ctx := c.Request.Context()
	items := make([]models.BulkItem, 0, len(docs))

	if eng, ok := s.app.Engine.(*local.Engine); ok {
		if err := eng.BulkIndex(ctx, s.app.Index, docs); err != nil {
			return nil, err
		}
		for _, d := range docs {
			items = append(items, models.BulkItem{Index: s.app.Index, Type: d.Type, ID: d.ID, Status: http.StatusCreated})
		}
		return items, nil
	}

	indexer, ok := s.app.Engine.(engine.Indexer)
	if !ok {
		return nil, errors.New("engine does not accept documents")
	}
	for _, d := range docs {
		item := models.BulkItem{Index: s.app.Index, Type: d.Type, ID: d.ID, Status: http.StatusCreated}
		if err := indexer.IndexDocument(ctx, s.app.Index, d.Type, d.ID, d.Source); err != nil {
			item.Status = http.StatusInternalServerError
			item.Error = err.Error()
		}
		items = append(items, item)
	}
	return items, nil
}

// Metadata describes the shard layout of the local engine's indices.
func (s *Service) Metadata(c *gin.Context) {
	eng, ok := s.app.Engine.(*local.Engine)
	if !ok {
		s.fail(c, http.StatusNotImplemented, errors.New("metadata needs the local engine"))
		return
	}
	out := make(map[string]local.Metadata)
	for _, name := range eng.ListIndices() {
		if idx := eng.GetIndex(name); idx != nil {
			out[name] = idx.GetMetadata()
		}
	}
	c.JSON(http.StatusOK, out)
}
