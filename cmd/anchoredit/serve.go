package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"anchoredit/engine/internal/engine"
	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/metrics"
	"anchoredit/engine/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine as JSON-RPC over stdin/stdout",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer env.close()
	logger := env.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, env.cfg, engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		return err
	}
	defer eng.Close()

	if env.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, env.cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics.serve_failed", "error", err.Error())
			}
		}()
	}

	server := rpc.NewServer(engine.APIVersion, os.Stdin, os.Stdout, logger)
	eng.SetNotifier(server.Notify)

	register := func(method string, fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo)) {
		server.Register(method, func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
			result, errInfo := fn(ctx, params)
			if errInfo != nil {
				msg := errInfo.ErrorCode
				if errInfo.Detail != "" {
					msg = errInfo.Detail
				}
				return nil, &rpc.Error{Message: msg, Data: errInfo}
			}
			return result, nil
		})
	}

	register("EngineGetInfo", eng.EngineGetInfo)

	register("DocumentsList", eng.DocumentsList)
	register("DocumentGet", eng.DocumentGet)
	register("DocumentCreate", eng.DocumentCreate)
	register("DocumentSetContent", eng.DocumentSetContent)
	register("DocumentApplyContent", eng.DocumentApplyContent)

	register("WorkspaceSetActiveDocument", eng.WorkspaceSetActiveDocument)
	register("WorkspaceSetActiveModel", eng.WorkspaceSetActiveModel)

	register("ConversationSend", eng.ConversationSend)
	register("ConversationGetState", eng.ConversationGetState)
	register("ConversationGetHistory", eng.ConversationGetHistory)

	register("ApprovalGetPending", eng.ApprovalGetPending)
	register("ApprovalDecide", eng.ApprovalDecide)

	logger.Info("rpc.serving", "methods", len(server.Methods()))
	if err := server.Serve(ctx); err != nil {
		logger.Error("rpc.server_error", "error", err.Error())
		return err
	}
	return nil
}
