package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boxrun/boxd/internal/identity"
	"github.com/boxrun/boxd/internal/transport"
	"github.com/boxrun/boxd/internal/vfs"
)

// saveFileRequest is the JSON payload base64-carried by SAVF.
type saveFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// createRequest is the JSON payload base64-carried by CREA.
type createRequest struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// dispatch handles every code except EXEC/RUNF (execution-start, see
// gateway.go's runExecution) and INPR/OUTT (handled by the connection
// loop directly, since they interact with in-flight execution state
// the dispatch table doesn't own).
func (g *Gateway) dispatch(ctx context.Context, sess *Session, frame Frame) Frame {
	switch frame.Code {
	case "REGI":
		return g.handleRegister(ctx, frame)
	case "LOGN":
		return g.handleLogin(ctx, sess, frame)
	case "GETF":
		return g.handleGetFile(sess, frame, "FILC")
	case "DNLD":
		return g.handleGetFile(sess, frame, "DNLR")
	case "SAVF":
		return g.handleSaveFile(ctx, sess, frame)
	case "CREA":
		return g.handleCreate(ctx, sess, frame)
	case "DELF":
		return g.handleDelete(ctx, sess, frame)
	default:
		return errFrame(codeGeneric)
	}
}

func (g *Gateway) callBackend(ctx context.Context, req transport.Request) (transport.Response, error) {
	acquireStart := time.Now()
	lease, err := g.pool.Acquire(ctx)
	g.metrics.PoolAcquireWait(time.Since(acquireStart))
	if err != nil {
		return transport.Response{}, err
	}

	var resp transport.Response
	var callErr error
	defer func() { lease.Release(ctx, callErr) }()

	resp, callErr = lease.Conn().Call(req)
	if callErr != nil {
		g.metrics.PoolConnectionPoisoned()
		return transport.Response{}, callErr
	}
	return resp, nil
}

func (g *Gateway) handleRegister(ctx context.Context, frame Frame) Frame {
	email, err := frame.Arg(0)
	if err != nil {
		return errFrame(codeGeneric)
	}
	password, err := frame.Arg(1)
	if err != nil {
		return errFrame(codeGeneric)
	}

	resp, err := g.callBackend(ctx, transport.Request{Command: "add_user", Args: []any{email, password}})
	g.metrics.CommandProcessed("REGI")
	if err != nil {
		return errFrame(codeGeneric)
	}
	if !resp.OK() {
		if resp.ErrorType == "user_exists" {
			return errFrame(codePrecondition)
		}
		return errFrame(codeGeneric)
	}
	return NewFrame("REGR")
}

func (g *Gateway) handleLogin(ctx context.Context, sess *Session, frame Frame) Frame {
	email, err := frame.Arg(0)
	if err != nil {
		return errFrame(codeGeneric)
	}
	password, err := frame.Arg(1)
	if err != nil {
		return errFrame(codeGeneric)
	}

	authResp, err := g.callBackend(ctx, transport.Request{Command: "is_password_ok", Args: []any{email, password}})
	g.metrics.CommandProcessed("LOGN")
	// Design Note 9.3: a backend lookup failure and a wrong password
	// must look identical to the client — both paths fall through to
	// the same ERRR~101 below.
	ok := err == nil && authResp.OK() && asBool(authResp.Data)
	g.metrics.AuthAttempt(ok)
	if !ok {
		return errFrame(codeLoginFailed)
	}

	idResp, err := g.callBackend(ctx, transport.Request{Command: "get_user_id", Args: []any{email}})
	if err != nil || !idResp.OK() {
		return errFrame(codeGeneric)
	}
	userID, ok := asInt(idResp.Data)
	if !ok {
		return errFrame(codeGeneric)
	}

	treeResp, err := g.callBackend(ctx, transport.Request{Command: "get_user_files_struct", Args: []any{email}})
	if err != nil || !treeResp.OK() {
		return errFrame(codeGeneric)
	}
	blob, _ := asBytes(treeResp.Data)
	tree, err := vfs.Unmarshal(blob)
	if err != nil {
		return errFrame(codeGeneric)
	}

	u := identity.User{ID: userID}
	userFS, err := vfs.NewUserFS(g.cfg.StorageBase, u.Dirname(), tree)
	if err != nil {
		return errFrame(codeGeneric)
	}
	sess.authenticate(userID, email, userFS)

	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return errFrame(codeGeneric)
	}
	return NewFrame("LOGR", string(treeJSON))
}

func (g *Gateway) handleGetFile(sess *Session, frame Frame, replyCode string) Frame {
	if !sess.isAuthenticated() {
		return errFrame(codeNotAuthenticated)
	}
	path, err := frame.Arg(0)
	if err != nil {
		return errFrame(codeGeneric)
	}
	content, err := sess.UserFS().GetFileContent(path)
	if err != nil {
		return errFrame(mapVFSErrorCode(err))
	}
	return NewFrame(replyCode, encodeB64([]byte(content)))
}

func (g *Gateway) handleSaveFile(ctx context.Context, sess *Session, frame Frame) Frame {
	if !sess.isAuthenticated() {
		return errFrame(codeNotAuthenticated)
	}
	arg, err := frame.Arg(0)
	if err != nil {
		return errFrame(codeGeneric)
	}
	raw, err := decodeB64(arg)
	if err != nil {
		return errFrame(codeGeneric)
	}
	var req saveFileRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errFrame(codeGeneric)
	}

	userFS := sess.UserFS()
	if err := userFS.UpdateFileContent(req.Path, req.Content); err != nil {
		return errFrame(mapVFSErrorCode(err))
	}
	if err := g.persistTree(ctx, sess); err != nil {
		return errFrame(codeGeneric)
	}
	return NewFrame("SAVR")
}

func (g *Gateway) handleCreate(ctx context.Context, sess *Session, frame Frame) Frame {
	if !sess.isAuthenticated() {
		return errFrame(codeNotAuthenticated)
	}
	arg, err := frame.Arg(0)
	if err != nil {
		return errFrame(codeGeneric)
	}
	raw, err := decodeB64(arg)
	if err != nil {
		return errFrame(codeGeneric)
	}
	var req createRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errFrame(codeGeneric)
	}

	userFS := sess.UserFS()
	var createErr error
	switch req.Type {
	case "file":
		createErr = userFS.CreateFile(req.Path)
	case "folder":
		createErr = userFS.CreateDir(req.Path)
	default:
		return errFrame(codeGeneric)
	}
	if createErr != nil {
		return errFrame(mapVFSErrorCode(createErr))
	}
	if err := g.persistTree(ctx, sess); err != nil {
		return errFrame(codeGeneric)
	}
	return NewFrame("CRER")
}

func (g *Gateway) handleDelete(ctx context.Context, sess *Session, frame Frame) Frame {
	if !sess.isAuthenticated() {
		return errFrame(codeNotAuthenticated)
	}
	path, err := frame.Arg(0)
	if err != nil {
		return errFrame(codeGeneric)
	}
	if err := sess.UserFS().DeleteFile(path); err != nil {
		return errFrame(mapVFSErrorCode(err))
	}
	if err := g.persistTree(ctx, sess); err != nil {
		return errFrame(codeGeneric)
	}
	return NewFrame("DELR")
}

// persistTree pushes the session's in-memory tree to the backend store:
// every mutation that succeeds on disk is followed by a
// set_user_files_struct call so the two stay in sync.
func (g *Gateway) persistTree(ctx context.Context, sess *Session) error {
	userFS := sess.UserFS()
	blob, err := userFS.Tree().Marshal()
	if err != nil {
		return fmt.Errorf("gateway: marshaling tree: %w", err)
	}
	resp, err := g.callBackend(ctx, transport.Request{Command: "set_user_files_struct", Args: []any{sess.Email(), blob}})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("gateway: persisting tree: %s", resp.Message)
	}
	return nil
}

func mapVFSErrorCode(err error) string {
	switch {
	case errors.Is(err, vfs.ErrAlreadyExists):
		return codePrecondition
	case errors.Is(err, vfs.ErrParentMissing):
		return codeParentMissing
	case errors.Is(err, vfs.ErrNotFound), errors.Is(err, vfs.ErrInvalidPath), errors.Is(err, vfs.ErrNotFolder):
		return codeNotFound
	default:
		return codeGeneric
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asBytes(v any) ([]byte, bool) {
	if v == nil {
		return nil, true
	}
	b, ok := v.([]byte)
	return b, ok
}
