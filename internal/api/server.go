package api

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Serve runs the API server until ctx is canceled, then drains with a
// short shutdown window.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming endpoints
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}
