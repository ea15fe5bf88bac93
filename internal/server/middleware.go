package server

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createLoggingMiddleware creates middleware that logs all MCP method calls
func createLoggingMiddleware(logger log.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			start := time.Now()
			sessionID := req.GetSession().ID()

			level.Debug(logger).Log("msg", "request", "session", sessionID, "method", method)

			result, err := next(ctx, method, req)

			if err != nil {
				level.Error(logger).Log("msg", "request failed", "session", sessionID, "method", method, "duration", time.Since(start), "err", err)
			} else if res, ok := result.(*mcp.CallToolResult); ok && res.IsError {
				level.Warn(logger).Log("msg", "tool returned error", "session", sessionID, "method", method, "duration", time.Since(start))
			} else {
				level.Info(logger).Log("msg", "request served", "session", sessionID, "method", method, "duration", time.Since(start))
			}

			return result, err
		}
	}
}
