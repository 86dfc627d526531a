// Package rpc serves newline-delimited JSON-RPC 2.0 over a byte stream.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"anchoredit/engine/internal/logging"
)

const (
	jsonRPCVersion = "2.0"
	maxMessageSize = 10 * 1024 * 1024
)

// Error codes. CodeApplication carries an errinfo payload in Data.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeApplication    = -32000
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	APIVer  string          `json:"api_version,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// Error is a handler failure. A zero Code is sent as CodeApplication.
type Error struct {
	Code    int
	Message string
	Data    any
}

// InvalidParams builds the error returned for undecodable params.
func InvalidParams(err error) *Error {
	return &Error{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
}

type Server struct {
	apiVersion string
	reader     *bufio.Reader
	writer     *bufio.Writer
	mu         sync.Mutex
	handlers   map[string]Handler
	logger     *slog.Logger
	inflight   sync.WaitGroup
}

func NewServer(apiVersion string, r io.Reader, w io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		apiVersion: apiVersion,
		reader:     bufio.NewReader(r),
		writer:     bufio.NewWriter(w),
		handlers:   make(map[string]Handler),
		logger:     logger,
	}
}

func (s *Server) Register(method string, handler Handler) {
	s.handlers[method] = handler
}

// Methods lists the registered method names.
func (s *Server) Methods() []string {
	out := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		out = append(out, name)
	}
	return out
}

// Serve reads requests until EOF or a read error. Each request runs in its
// own goroutine; Serve waits for in-flight handlers before returning.
func (s *Server) Serve(ctx context.Context) error {
	defer s.inflight.Wait()
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Error("rpc.read_failed", "error", err.Error())
			return err
		}
		if len(line) > maxMessageSize {
			s.logger.Warn("rpc.message_too_large", "bytes", len(line))
			s.sendError(nil, CodeInvalidRequest, "message too large", nil)
			continue
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			s.dispatch(ctx, trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Error("rpc.read_failed", "error", err.Error())
			return err
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("rpc.invalid_json", "error", err.Error())
		s.sendError(nil, CodeParseError, "invalid json", nil)
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		s.logger.Warn("rpc.invalid_version", "version", req.JSONRPC)
		s.sendError(req.ID, CodeInvalidRequest, "invalid jsonrpc version", nil)
		return
	}
	if req.APIVer != "" && req.APIVer != s.apiVersion {
		s.logger.Warn("rpc.incompatible_version", "requested", req.APIVer, "expected", s.apiVersion)
		s.sendError(req.ID, CodeInvalidRequest, "incompatible api_version", map[string]string{"expected": s.apiVersion})
		return
	}
	handler, ok := s.handlers[req.Method]
	if !ok {
		s.logger.Warn("rpc.method_not_found", "method", req.Method)
		s.sendError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
		return
	}
	s.logger.Debug("rpc.request", "method", req.Method, "id", string(req.ID), "params", logging.RedactJSON(req.Params))
	s.inflight.Add(1)
	go s.handleRequest(ctx, req, handler)
}

func (s *Server) handleRequest(ctx context.Context, req Request, handler Handler) {
	defer s.inflight.Done()
	result, err := s.invoke(ctx, req, handler)
	if req.ID == nil {
		return
	}
	if err != nil {
		s.logger.Warn("rpc.response_error", "method", req.Method, "id", string(req.ID), "message", err.Message, "data", logging.RedactAny(err.Data))
		code := err.Code
		if code == 0 {
			code = CodeApplication
		}
		s.sendError(req.ID, code, err.Message, err.Data)
		return
	}
	s.logger.Debug("rpc.response", "method", req.Method, "id", string(req.ID), "result", logging.RedactAny(result))
	s.send(Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

func (s *Server) invoke(ctx context.Context, req Request, handler Handler) (result any, rpcErr *Error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("rpc.handler_panic", "method", req.Method, "panic", fmt.Sprint(rec))
			result, rpcErr = nil, &Error{Message: "internal error"}
		}
	}()
	return handler(ctx, req.Params)
}

// Notify writes a notification. It is safe to call from any goroutine.
func (s *Server) Notify(method string, params any) {
	s.logger.Debug("rpc.notify", "method", method, "params", logging.RedactAny(params))
	s.send(Notification{JSONRPC: jsonRPCVersion, Method: method, Params: params})
}

func (s *Server) sendError(id json.RawMessage, code int, message string, data any) {
	s.send(Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &ErrorPayload{Code: code, Message: message, Data: data},
	})
}

func (s *Server) send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("rpc.marshal_failed", "error", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(append(data, '\n'))
	_ = s.writer.Flush()
}
