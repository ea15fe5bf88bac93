package server

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/profremap/internal/config"
	"github.com/yousuf/profremap/internal/cpuprofile"
	"github.com/yousuf/profremap/internal/remap"
)

// RemapProfileArgs represents the arguments for the remap_cpuprofile tool
type RemapProfileArgs struct {
	ProfilePath string `json:"profilePath" jsonschema:"Path to the .cpuprofile file to remap"`
	ProjectRoot string `json:"projectRoot" jsonschema:"Project root containing the build directory (e.g. the directory holding .regolith)"`
	OutputPath  string `json:"outputPath,omitempty" jsonschema:"Where to write the remapped profile. Defaults to <name>-remapped.cpuprofile next to the input."`
}

// RemapProfileResult is the structured result of the remap_cpuprofile tool
type RemapProfileResult struct {
	OutputPath string      `json:"outputPath"`
	Stats      remap.Stats `json:"stats"`
}

// RemapStackTraceArgs represents the arguments for the remap_stack_trace tool
type RemapStackTraceArgs struct {
	StackTrace  string `json:"stackTrace" jsonschema:"JavaScript stack trace as printed by the script engine"`
	ProjectRoot string `json:"projectRoot" jsonschema:"Project root containing the build directory"`
}

// NewMCPServer creates and configures the MCP server
func NewMCPServer(logger log.Logger, remapper *remap.Remapper, layout config.Layout) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "profremap",
		Version: "1.0.0",
	}, &mcp.ServerOptions{
		Instructions: `
Source-mapped CPU profiles for bundled JavaScript

Profiles recorded against compiled scripts point at generated code. These tools rewrite
positions back to the original sources using the .map files emitted next to the scripts.

Expected project layout:
<projectRoot>/
└── ` + layout.BuildDir + `/
    └── ` + layout.ScriptsDir + `/   (compiled .js files and their .map files)

Original sources are reported as "` + layout.Namespace + `/<path relative to ` + layout.BuildDir + `>".

Available Tools:
1. "remap_cpuprofile" - Remap a .cpuprofile file and write the result next to it
2. "remap_stack_trace" - Remap a JavaScript stack trace

Notes:
- Frames without a source map are left unchanged
- Line and column numbers in stack traces are 1-based
`,
	})

	server.AddReceivingMiddleware(createLoggingMiddleware(logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remap_cpuprofile",
		Description: "Rewrite the call frames of a .cpuprofile so they point at original sources instead of compiled scripts. Returns the output path and remapping statistics.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RemapProfileArgs) (*mcp.CallToolResult, RemapProfileResult, error) {
		if args.ProfilePath == "" || args.ProjectRoot == "" {
			return nil, RemapProfileResult{}, fmt.Errorf("profilePath and projectRoot are required")
		}

		p, err := cpuprofile.ReadFile(args.ProfilePath)
		if err != nil {
			return nil, RemapProfileResult{}, err
		}

		stats, err := remapper.Remap(ctx, p, args.ProjectRoot)
		if err != nil {
			return nil, RemapProfileResult{}, fmt.Errorf("remapping failed: %w", err)
		}

		outputPath := args.OutputPath
		if outputPath == "" {
			outputPath = cpuprofile.OutputPath(args.ProfilePath, layout.ProfileExtension)
		}
		if err := cpuprofile.WriteFile(outputPath, p); err != nil {
			return nil, RemapProfileResult{}, err
		}

		return nil, RemapProfileResult{OutputPath: outputPath, Stats: stats}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remap_stack_trace",
		Description: "Rewrite the frames of a JavaScript stack trace to original source positions. Frames without a source map are returned unchanged.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RemapStackTraceArgs) (*mcp.CallToolResult, any, error) {
		if args.ProjectRoot == "" {
			return nil, nil, fmt.Errorf("projectRoot is required")
		}

		out, _, err := remapper.RemapStackTrace(ctx, args.StackTrace, args.ProjectRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("remapping failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: out},
			},
		}, nil, nil
	})

	return server
}
