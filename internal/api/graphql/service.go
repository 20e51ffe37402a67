package graphql

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"go.uber.org/zap"

	"sheer/internal/engine"
	"sheer/internal/query"
)

// JSON passes arbitrary values through unchanged.
var JSON = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value",
	Serialize:   func(v interface{}) interface{} { return v },
	ParseValue:  func(v interface{}) interface{} { return v },
	ParseLiteral: func(valueAST ast.Value) interface{} {
		return parseLiteral(valueAST)
	},
})

func parseLiteral(v ast.Value) interface{} {
	switch t := v.(type) {
	case *ast.StringValue:
		return t.Value
	case *ast.BooleanValue:
		return t.Value
	case *ast.IntValue:
		n, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil
		}
		return f
	case *ast.ListValue:
		out := make([]interface{}, len(t.Values))
		for i, e := range t.Values {
			out[i] = parseLiteral(e)
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(t.Fields))
		for _, f := range t.Fields {
			out[f.Name.Value] = parseLiteral(f.Value)
		}
		return out
	default:
		return nil
	}
}

type Service struct {
	app    *query.App
	finder *query.Finder
	logger *zap.Logger
	schema graphql.Schema
}

func NewService(app *query.App, finder *query.Finder, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{app: app, finder: finder, logger: logger}
	schema, err := s.buildSchema()
	if err != nil {
		return nil, err
	}
	s.schema = schema
	return s, nil
}

func (s *Service) buildSchema() (graphql.Schema, error) {
	hitType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Hit",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*query.Hit).ID(), nil
				},
			},
			"type": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*query.Hit).Type(), nil
				},
			},
			"permalink": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if u, ok := p.Source.(*query.Hit).Permalink(); ok {
						return u, nil
					}
					return nil, nil
				},
			},
			"field": &graphql.Field{
				Type: JSON,
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := p.Source.(*query.Hit).Field(p.Args["name"].(string))
					if err != nil {
						return nil, err
					}
					return v.Interface(), nil
				},
			},
			"fields": &graphql.Field{
				Type: JSON,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*query.Hit).ToSerializable(p.Context)
				},
			},
		},
	})

	intField := func(get func(*query.ResultSet) int) *graphql.Field {
		return &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return get(p.Source.(*query.ResultSet)), nil
			},
		}
	}

	resultSetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ResultSet",
		Fields: graphql.Fields{
			"total":       intField(func(rs *query.ResultSet) int { return rs.Total }),
			"size":        intField(func(rs *query.ResultSet) int { return rs.Size }),
			"from":        intField(func(rs *query.ResultSet) int { return rs.From }),
			"pages":       intField(func(rs *query.ResultSet) int { return rs.Pages }),
			"currentPage": intField(func(rs *query.ResultSet) int { return rs.CurrentPage }),
			"hasNext": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*query.ResultSet).HasNext(), nil
				},
			},
			"hasPrevious": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*query.ResultSet).HasPrevious(), nil
				},
			},
			"hits": &graphql.Field{
				Type: graphql.NewList(hitType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*query.ResultSet).All(p.Context)
				},
			},
			"json": &graphql.Field{
				Type: JSON,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*query.ResultSet).ToSerializable(p.Context)
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"templates": &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return s.finder.Names()
				},
			},
			"search": &graphql.Field{
				Type: resultSetType,
				Args: graphql.FieldConfigArgument{
					"template": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"q":        &graphql.ArgumentConfig{Type: graphql.String},
					"page":     &graphql.ArgumentConfig{Type: graphql.Int},
					"params":   &graphql.ArgumentConfig{Type: JSON},
				},
				Resolve: s.resolveSearch,
			},
			"mapping": &graphql.Field{
				Type: JSON,
				Args: graphql.FieldConfigArgument{
					"type": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return s.app.Mappings.ForType(p.Context, p.Args["type"].(string))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"index": &graphql.Field{
				Type: graphql.String,
				Args: graphql.FieldConfigArgument{
					"type": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"id":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"json": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					indexer, ok := s.app.Engine.(engine.Indexer)
					if !ok {
						return nil, errors.New("engine does not accept documents")
					}
					var data map[string]interface{}
					if err := json.Unmarshal([]byte(p.Args["json"].(string)), &data); err != nil {
						return nil, err
					}
					err := indexer.IndexDocument(p.Context, s.app.Index, p.Args["type"].(string), p.Args["id"].(string), data)
					if err != nil {
						return nil, err
					}
					s.app.Mappings.Clear()
					return "ok", nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// resolveSearch runs a template as if q and page had arrived as request
// arguments, with params as overrides.
func (s *Service) resolveSearch(p graphql.ResolveParams) (interface{}, error) {
	q, err := s.finder.Lookup(p.Args["template"].(string))
	if err != nil {
		return nil, err
	}

	args := url.Values{}
	if text, ok := p.Args["q"].(string); ok && text != "" {
		args.Set("q", text)
	}
	if page, ok := p.Args["page"].(int); ok {
		args.Set("page", strconv.Itoa(page))
	}
	var overrides engine.Params
	if m, ok := p.Args["params"].(map[string]interface{}); ok {
		overrides = engine.Params(m)
	}

	return q.SearchWithURLArguments(p.Context, query.Request{Path: "/graphql", Args: args}, overrides)
}

func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Query         string                 `json:"query"`
			OperationName string                 `json:"operationName"`
			Variables     map[string]interface{} `json:"variables"`
		}
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result := graphql.Do(graphql.Params{
			Schema:         s.schema,
			RequestString:  request.Query,
			VariableValues: request.Variables,
			OperationName:  request.OperationName,
			Context:        c.Request.Context(),
		})
		if result.HasErrors() {
			s.logger.Debug("graphql errors", zap.Any("errors", result.Errors))
		}

		c.JSON(http.StatusOK, result)
	}
}
