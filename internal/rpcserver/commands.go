package rpcserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/boxrun/boxd/internal/store"
	"github.com/boxrun/boxd/internal/transport"
)

// dispatch services one decoded Request against st, returning the
// Response to send back. It is a closed switch over the seven
// allow-listed command names (Design Note 9.1: explicit dispatch, no
// reflection) — adding an eighth command means adding an eighth case,
// never wiring up a generic method-name lookup.
func dispatch(ctx context.Context, st store.Store, req transport.Request) transport.Response {
	switch req.Command {
	case "is_user_exist":
		return cmdIsUserExist(ctx, st, req)
	case "get_user_id":
		return cmdGetUserID(ctx, st, req)
	case "is_password_ok":
		return cmdIsPasswordOK(ctx, st, req)
	case "add_user":
		return cmdAddUser(ctx, st, req)
	case "set_user_files_struct":
		return cmdSetUserFilesStruct(ctx, st, req)
	case "get_user_files_struct":
		return cmdGetUserFilesStruct(ctx, st, req)
	case "get_all_users_string":
		return cmdGetAllUsersString(ctx, st, req)
	default:
		return transport.Failure("unknown_command", fmt.Sprintf("%v: %q", ErrUnknownCommand, req.Command))
	}
}

func stringArg(req transport.Request, i int) (string, error) {
	if i >= len(req.Args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := req.Args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i, req.Args[i])
	}
	return s, nil
}

func bytesArg(req transport.Request, i int) ([]byte, error) {
	if i >= len(req.Args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	switch v := req.Args[i].(type) {
	case []byte:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("argument %d: expected bytes, got %T", i, req.Args[i])
	}
}

// storeErrorResponse maps a store-layer sentinel error onto the
// error_type/message pair the gateway's dispatch table translates into
// the right ERRR~code.
func storeErrorResponse(err error) transport.Response {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return transport.Failure("user_not_found", err.Error())
	case errors.Is(err, store.ErrUserExists):
		return transport.Failure("user_exists", err.Error())
	case errors.Is(err, store.ErrUserDisabled):
		return transport.Failure("user_disabled", err.Error())
	default:
		return transport.Failure("internal", err.Error())
	}
}

func cmdIsUserExist(ctx context.Context, st store.Store, req transport.Request) transport.Response {
	email, err := stringArg(req, 0)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	ok, err := st.IsUserExist(ctx, email)
	if err != nil {
		return storeErrorResponse(err)
	}
	return transport.Success(ok)
}

func cmdGetUserID(ctx context.Context, st store.Store, req transport.Request) transport.Response {
	email, err := stringArg(req, 0)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	id, err := st.GetUserID(ctx, email)
	if err != nil {
		return storeErrorResponse(err)
	}
	return transport.Success(id)
}

func cmdIsPasswordOK(ctx context.Context, st store.Store, req transport.Request) transport.Response {
	email, err := stringArg(req, 0)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	password, err := stringArg(req, 1)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	ok, err := st.IsPasswordOK(ctx, email, password)
	if err != nil {
		// Design Note 9.3: lookup failure and wrong password must look
		// identical to the caller. Reporting "false, no error" here means
		// the gateway's single truthiness check produces the same ERRR~101
		// either way, matching the source's None-vs-False behavior.
		return transport.Success(false)
	}
	return transport.Success(ok)
}

func cmdAddUser(ctx context.Context, st store.Store, req transport.Request) transport.Response {
	email, err := stringArg(req, 0)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	password, err := stringArg(req, 1)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	id, err := st.AddUser(ctx, email, password)
	if err != nil {
		return storeErrorResponse(err)
	}
	return transport.Success(id)
}

func cmdSetUserFilesStruct(ctx context.Context, st store.Store, req transport.Request) transport.Response {
	email, err := stringArg(req, 0)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	blob, err := bytesArg(req, 1)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	if err := st.SetUserFilesStruct(ctx, email, blob); err != nil {
		return storeErrorResponse(err)
	}
	return transport.Success(nil)
}

func cmdGetUserFilesStruct(ctx context.Context, st store.Store, req transport.Request) transport.Response {
	email, err := stringArg(req, 0)
	if err != nil {
		return transport.Failure("bad_request", err.Error())
	}
	blob, err := st.GetUserFilesStruct(ctx, email)
	if err != nil {
		return storeErrorResponse(err)
	}
	return transport.Success(blob)
}

func cmdGetAllUsersString(ctx context.Context, st store.Store, _ transport.Request) transport.Response {
	s, err := st.GetAllUsersString(ctx)
	if err != nil {
		return storeErrorResponse(err)
	}
	return transport.Success(s)
}
