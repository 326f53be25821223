package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// execCommandContext is a variable so tests can substitute the helper binary.
var execCommandContext = exec.CommandContext

var errHandleReleased = errors.New("engine handle already released")

// Helper protocol operations. Each request and response is one JSON document
// per line on the helper's stdin and stdout.
const (
	opHello    = "hello"
	opOpen     = "open"
	opRefs     = "refs"
	opClose    = "close"
	opShutdown = "shutdown"
)

type helperRequest struct {
	ID          int64                `json:"id"`
	Op          string               `json:"op"`
	LicenseKey  string               `json:"license_key,omitempty"`
	Path        string               `json:"path,omitempty"`
	Kind        schemas.DocumentKind `json:"kind,omitempty"`
	ReadOnly    bool                 `json:"read_only,omitempty"`
	Doc         string               `json:"doc,omitempty"`
	SearchPaths []string             `json:"search_paths,omitempty"`
	Filters     int                  `json:"filters,omitempty"`
}

type helperResponse struct {
	ID     int64  `json:"id"`
	Error  string `json:"error,omitempty"`
	Status string `json:"status,omitempty"`
	Doc    string `json:"doc,omitempty"`
	// A JSON null (or a missing key) means the document has no reference table.
	References []schemas.ExternalReference `json:"references"`
}

// HelperConfig describes how to start the engine bridge process.
type HelperConfig struct {
	Path           string
	Args           []string
	StartupTimeout time.Duration
}

// HelperEngine talks to the licensed CAD engine through a bridge process. Each
// handle owns one process, so handles can be used concurrently.
type HelperEngine struct {
	cfg    HelperConfig
	logger *zap.Logger
}

// NewHelperEngine creates a HelperEngine. No process is started until
// ObtainHandle is called.
func NewHelperEngine(cfg HelperConfig, logger *zap.Logger) *HelperEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	return &HelperEngine{cfg: cfg, logger: logger.Named("helper")}
}

func (e *HelperEngine) SupportsConcurrentHandles() bool { return true }

// ObtainHandle starts a helper process and activates it with licenseKey.
func (e *HelperEngine) ObtainHandle(ctx context.Context, licenseKey string) (schemas.EngineHandle, error) {
	cmd := execCommandContext(ctx, e.cfg.Path, e.cfg.Args...)
	cmd.Stderr = zap.NewStdLog(e.logger).Writer()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open helper stdin: %w", schemas.ErrEngineUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open helper stdout: %w", schemas.ErrEngineUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start helper %s: %w", schemas.ErrEngineUnavailable, e.cfg.Path, err)
	}

	h := &helperHandle{
		cmd:    cmd,
		stdin:  stdin,
		enc:    json.NewEncoder(stdin),
		dec:    json.NewDecoder(stdout),
		logger: e.logger.With(zap.Int("pid", cmd.Process.Pid)),
	}

	helloCtx, cancel := context.WithTimeout(ctx, e.cfg.StartupTimeout)
	defer cancel()
	if _, err := h.call(helloCtx, helperRequest{Op: opHello, LicenseKey: licenseKey}); err != nil {
		h.kill()
		_ = h.wait()
		return nil, fmt.Errorf("%w: helper handshake failed: %w", schemas.ErrEngineUnavailable, err)
	}
	h.logger.Debug("Engine helper ready")
	return h, nil
}

type helperHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *jsoniter.Encoder
	dec    *jsoniter.Decoder
	logger *zap.Logger

	mu       sync.Mutex
	seq      int64
	broken   error
	released bool
}

func (h *helperHandle) OpenDocument(ctx context.Context, path string, kind schemas.DocumentKind, readOnly bool) (schemas.DocumentHandle, schemas.OpenStatus, error) {
	resp, err := h.call(ctx, helperRequest{Op: opOpen, Path: path, Kind: kind, ReadOnly: readOnly})
	if err != nil {
		return schemas.DocumentHandle{}, schemas.OpenStatusFailed, err
	}
	status := schemas.ParseOpenStatus(resp.Status)
	if status != schemas.OpenStatusOK {
		return schemas.DocumentHandle{}, status, nil
	}
	return schemas.DocumentHandle{ID: resp.Doc, Path: path, Kind: kind}, schemas.OpenStatusOK, nil
}

func (h *helperHandle) QueryExternalReferences(ctx context.Context, doc schemas.DocumentHandle, opts schemas.SearchOptions) ([]schemas.ExternalReference, error) {
	resp, err := h.call(ctx, helperRequest{
		Op:          opRefs,
		Doc:         doc.ID,
		SearchPaths: opts.SearchPaths,
		Filters:     opts.Filters,
	})
	if err != nil {
		return nil, err
	}
	return resp.References, nil
}

func (h *helperHandle) CloseDocument(ctx context.Context, doc schemas.DocumentHandle) error {
	_, err := h.call(ctx, helperRequest{Op: opClose, Doc: doc.ID})
	return err
}

// Release asks the helper to shut down and waits for it to exit.
func (h *helperHandle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	broken := h.broken
	h.mu.Unlock()

	if broken == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := h.roundTrip(ctx, helperRequest{Op: opShutdown})
		cancel()
		if err != nil {
			h.logger.Warn("Helper did not acknowledge shutdown", zap.Error(err))
			h.kill()
		}
	}
	_ = h.stdin.Close()
	if err := h.wait(); err != nil && broken == nil {
		return fmt.Errorf("helper exited uncleanly: %w", err)
	}
	return nil
}

// call performs one request/response exchange and turns a helper-side error
// message into a Go error.
func (h *helperHandle) call(ctx context.Context, req helperRequest) (*helperResponse, error) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil, errHandleReleased
	}
	h.mu.Unlock()

	var resp helperResponse
	if err := h.exchange(ctx, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("helper %s failed: %s", req.Op, resp.Error)
	}
	return &resp, nil
}

func (h *helperHandle) roundTrip(ctx context.Context, req helperRequest) error {
	var resp helperResponse
	return h.exchange(ctx, req, &resp)
}

// exchange serializes access to the pipes. When ctx ends first the process is
// killed, which unblocks the pending read, and the handle is marked broken.
func (h *helperHandle) exchange(ctx context.Context, req helperRequest, resp *helperResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.broken != nil {
		return h.broken
	}

	h.seq++
	req.ID = h.seq

	done := make(chan error, 1)
	go func() {
		if err := h.enc.Encode(req); err != nil {
			done <- fmt.Errorf("failed to send %s request: %w", req.Op, err)
			return
		}
		if err := h.dec.Decode(resp); err != nil {
			done <- fmt.Errorf("failed to read %s response: %w", req.Op, err)
			return
		}
		done <- nil
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// A response that is already in counts; only an unanswered request is abandoned.
		select {
		case err = <-done:
		default:
			h.kill()
			<-done
			h.broken = fmt.Errorf("helper abandoned during %s: %w", req.Op, ctx.Err())
			return ctx.Err()
		}
	}
	if err != nil {
		h.broken = err
		return err
	}
	if resp.ID != req.ID {
		h.broken = fmt.Errorf("helper answered request %d with id %d", req.ID, resp.ID)
		return h.broken
	}
	return nil
}

func (h *helperHandle) kill() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

func (h *helperHandle) wait() error {
	return h.cmd.Wait()
}
