package runtime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// LlamaServer is one running llama-server instance hosting a single model.
// The handle is single-owner: the worker that started it is the only one that
// talks to it, and Stop kills the process.
type LlamaServer struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	port   int
	done   chan struct{}
}

// llamaServerOptions configures a spawn.
type llamaServerOptions struct {
	Bin       string
	ModelPath string
	Device    Device
	Embedding bool
}

// startLlamaServer spawns llama-server for one model on an ephemeral localhost
// port and waits until its health endpoint answers.
func startLlamaServer(ctx context.Context, opts llamaServerOptions) (*LlamaServer, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model weights not found at %s: %w", opts.ModelPath, err)
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	args := []string{
		"-m", opts.ModelPath,
		"--host", "127.0.0.1",
		"--port", fmt.Sprintf("%d", port),
		"-ngl", opts.Device.GPULayers(),
	}
	if opts.Embedding {
		args = append(args, "--embedding", "--pooling", "mean")
	} else {
		args = append(args, "--ctx-size", "8192", "-fa")
	}

	pctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(pctx, opts.Bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Info().Str("model", opts.ModelPath).Int("port", port).Msg("starting_llama_server")
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start llama-server: %w", err)
	}

	s := &LlamaServer{cmd: cmd, cancel: cancel, port: port, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(s.done)
	}()

	if err := s.waitReady(ctx, 2*time.Minute); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

// BaseURL is the OpenAI-compatible endpoint of this server.
func (s *LlamaServer) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/v1", s.port)
}

func (s *LlamaServer) waitReady(ctx context.Context, timeout time.Duration) error {
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", s.port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return fmt.Errorf("llama-server exited before becoming ready")
		case <-time.After(500 * time.Millisecond):
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
	}
	return fmt.Errorf("llama-server did not become ready within %s", timeout)
}

// Stop terminates the process, force-killing if it does not exit promptly.
func (s *LlamaServer) Stop() {
	if s == nil {
		return
	}
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		if s.cmd.Process != nil {
			log.Warn().Int("port", s.port).Msg("force_killing_llama_server")
			_ = s.cmd.Process.Kill()
		}
		<-s.done
	}
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port, nil
}
