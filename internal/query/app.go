package query

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"sheer/internal/engine"
	"sheer/internal/permalink"
)

// App carries the process-wide collaborators every query operation needs.
type App struct {
	Engine     engine.Engine
	Index      string
	Root       string
	Permalinks permalink.Rules
	Mappings   *MappingCache
	Logger     *zap.Logger
}

// NewApp wires an App with a fresh mapping cache bound to eng and index.
func NewApp(eng engine.Engine, index, root string, rules permalink.Rules, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rules == nil {
		rules = permalink.Rules{}
	}
	return &App{
		Engine:     eng,
		Index:      index,
		Root:       root,
		Permalinks: rules,
		Mappings:   NewMappingCache(eng, index),
		Logger:     logger,
	}
}

// Request is the part of an incoming request the pipeline reads: its path
// and query-string arguments.
type Request struct {
	Path string
	Args url.Values
}

func RequestFromHTTP(r *http.Request) Request {
	return Request{Path: r.URL.Path, Args: r.URL.Query()}
}

// flatArgs keeps the first value of every argument.
func (r Request) flatArgs() engine.Params {
	out := make(engine.Params, len(r.Args))
	for k, vs := range r.Args {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
