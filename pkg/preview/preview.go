// Package preview serves the generated site locally before it is published.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/valyala/fasthttp"

	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

// NewHandler serves files under root. Directories resolve to their
// index.html; missing paths answer 404.
func NewHandler(root string) (fasthttp.RequestHandler, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("preview root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("preview root %s is not a directory", root)
	}

	fs := &fasthttp.FS{
		Root:               root,
		IndexNames:         []string{"index.html"},
		GenerateIndexPages: false,
		Compress:           false,
		AcceptByteRange:    true,
		PathNotFound: func(ctx *fasthttp.RequestCtx) {
			ctx.Error("404 page not found", fasthttp.StatusNotFound)
		},
	}
	files := fs.NewRequestHandler()
	logger := toolutil.Logger()

	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		files(ctx)
		logger.Info("Preview request",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"duration", time.Since(start))
	}, nil
}

// Serve runs the preview server on ln until ctx is cancelled.
func Serve(ctx context.Context, ln net.Listener, root string) error {
	handler, err := NewHandler(root)
	if err != nil {
		return err
	}
	srv := &fasthttp.Server{
		Handler:      handler,
		Name:         "blogkit-preview",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		toolutil.Logger().Info("Shutting down preview server")
		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errChan:
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
}

// ListenAndServe listens on addr and calls Serve.
func ListenAndServe(ctx context.Context, addr, root string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	toolutil.PrintSuccess("Preview server running")
	toolutil.PrintKeyValue("URL", "http://"+ln.Addr().String()+"/")
	toolutil.PrintKeyValue("Root", root)
	return Serve(ctx, ln, root)
}
