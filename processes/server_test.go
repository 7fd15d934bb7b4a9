package processes

import (
	"context"
	"testing"
	"time"
)

func TestHTTPServerShutdownHooks(t *testing.T) {
	tests := []struct {
		name string
		stop func(s *HTTPServer) error
	}{
		{"shutdown", func(s *HTTPServer) error { return s.Shutdown(context.Background()) }},
		{"kill", func(s *HTTPServer) error { return s.Kill() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewHTTPServer(healthyHandler(), nil)
			called := make(chan struct{}, 2)
			srv.OnShutdown(func() { called <- struct{}{} })

			if err := srv.Start("127.0.0.1:0"); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if err := tt.stop(srv); err != nil {
				t.Fatalf("Stop failed: %v", err)
			}
			if err := srv.Wait(); err != nil {
				t.Errorf("Expected clean exit, got %v", err)
			}
			select {
			case <-called:
			case <-time.After(time.Second):
				t.Fatal("Shutdown hook was not called")
			}
		})
	}
}

func TestHTTPServerStartTwice(t *testing.T) {
	srv := NewHTTPServer(healthyHandler(), nil)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Kill()
	if err := srv.Start("127.0.0.1:0"); err == nil {
		t.Error("Expected second Start to fail")
	}
}
