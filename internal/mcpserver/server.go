// Package mcpserver provides an MCP (Model Context Protocol) server
// that lets an LLM host apply command replies and read the records via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bitacora/internal/apperr"
	"github.com/starford/bitacora/internal/assistant"
	"github.com/starford/bitacora/internal/command"
	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/index"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/store"
)

const contractURI = "bitacora://command-format"

// Server wraps the MCP server with bitácora tools.
type Server struct {
	mcp     *server.MCPServer
	store   *store.Store
	applier assistant.Applier
	search  index.Searcher
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithSearcher registers the search_records tool backed by sr.
func WithSearcher(sr index.Searcher) Option {
	return func(s *Server) { s.search = sr }
}

// New creates a new MCP server with all tools registered.
func New(s *store.Store, a assistant.Applier, opts ...Option) *Server {
	srv := &Server{store: s, applier: a, now: time.Now}
	for _, o := range opts {
		o(srv)
	}

	srv.mcp = server.NewMCPServer(
		"Bitacora",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	srv.mcp.AddTool(mcp.NewTool("apply_reply",
		mcp.WithDescription("Extract every TAG:{json} command from the text and save it. "+
			"Text MUST follow the command format contract; read it first via "+
			"get_command_contract or the "+contractURI+" resource. Returns one outcome per command."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Reply text containing command markers")),
	), srv.applyReply)

	srv.mcp.AddTool(mcp.NewTool("extract_commands",
		mcp.WithDescription("Dry run: parse and validate the commands in the text without saving anything."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Reply text containing command markers")),
	), srv.extractCommands)

	srv.mcp.AddTool(mcp.NewTool("get_command_contract",
		mcp.WithDescription("Returns the command format contract. "+
			"Call this before apply_reply to ensure correct markers and fields."),
	), srv.getCommandContract)

	srv.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List the records of a collection, optionally filtered on a declared index."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name, e.g. events, clients, warranties")),
		mcp.WithString("index", mcp.Description("Declared index field to filter or order by")),
		mcp.WithString("eq", mcp.Description("Exact value of the index field")),
		mcp.WithString("from", mcp.Description("Inclusive lower bound of the index field")),
		mcp.WithString("to", mcp.Description("Inclusive upper bound of the index field")),
		mcp.WithNumber("limit", mcp.Description("Max records (default 50)")),
		mcp.WithBoolean("desc", mcp.Description("Descending order")),
	), srv.listRecords)

	srv.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Read one record by collection and id."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record id")),
	), srv.getRecord)

	srv.mcp.AddTool(mcp.NewTool("get_bitacora",
		mcp.WithDescription("Read the work log entry for a date."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
	), srv.getBitacora)

	srv.mcp.AddTool(mcp.NewTool("attach_receipt",
		mcp.WithDescription("Attach a receipt image to an existing expense event. "+
			"Accepts a base64 data URI or an http(s) URL to a png, jpeg or webp image."),
		mcp.WithNumber("event_id", mcp.Required(), mcp.Description("Event id")),
		mcp.WithString("url", mcp.Required(), mcp.Description("data: URI or http(s) URL of the image")),
	), srv.attachReceipt)

	if srv.search != nil {
		srv.mcp.AddTool(mcp.NewTool("search_records",
			mcp.WithDescription("Full-text search across notes, bitácora entries, clients, warranties, invoices and other records."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Words to look for")),
			mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
		), srv.searchRecords)
	}

	// Resource: command format contract.
	srv.mcp.AddResource(
		mcp.NewResource(contractURI, "Command Format Contract",
			mcp.WithResourceDescription("Markers and fields every saving reply must use."),
			mcp.WithMIMEType("text/markdown"),
		),
		srv.readContractResource,
	)

	return srv
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) applyReply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.applier.ApplyText(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stopped after %d commands: %v", len(rep.Outcomes), err)), nil
	}
	return jsonResult(rep)
}

type extracted struct {
	Tag     command.Tag       `json:"tag"`
	Offset  int               `json:"offset"`
	Valid   bool              `json:"valid"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Payload command.Payload   `json:"payload,omitempty"`
}

func (s *Server) extractCommands(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := command.Extract(text)
	out := struct {
		Commands []extracted `json:"commands"`
		Message  string      `json:"message"`
	}{Commands: []extracted{}, Message: res.Message}

	for _, c := range res.Commands {
		if c.Tag == command.NoCommand {
			continue
		}
		e := extracted{Tag: c.Tag, Offset: c.Offset, Payload: c.Payload}
		err := c.Err
		if err == nil && c.Payload != nil {
			err = dispatch.ValidatePayload(c.Tag, c.Payload)
		}
		if err != nil {
			e.Error = err.Error()
			var ve *apperr.ValidationError
			if errors.As(err, &ve) {
				e.Fields = ve.Fields
			}
		} else {
			e.Valid = true
		}
		out.Commands = append(out.Commands, e)
	}
	return jsonResult(out)
}

func (s *Server) getCommandContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(assistant.CommandFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     assistant.CommandFormatContract,
		},
	}, nil
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	coll, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := store.Query{
		Index: req.GetString("index", ""),
		Eq:    store.ParseValue(req.GetString("eq", "")),
		From:  store.ParseValue(req.GetString("from", "")),
		To:    store.ParseValue(req.GetString("to", "")),
		Desc:  req.GetBool("desc", false),
		Limit: req.GetInt("limit", 50),
	}
	docs, err := records.Read(ctx, s.store, coll, q, s.now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docs)
}

func (s *Server) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	coll, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var doc json.RawMessage
	if err := s.store.Get(ctx, coll, int64(id), &doc); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s/%d", coll, id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err = records.Normalize(coll, doc, s.now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(doc)
}

func (s *Server) getBitacora(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, ok, err := s.store.First(ctx, records.Bitacora, store.Query{Index: "date", Eq: date})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no bitácora entry for %s", date)), nil
	}
	return jsonResult(rec.Doc)
}

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.search.Search(ctx, q, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}
