// Package mydocs provides a local, privacy-first document intelligence
// server speaking the Model Context Protocol (MCP).
//
// mydocs-mcp indexes documents from configured root directories into a
// local SQLite database and exposes three tools to MCP clients over
// JSON-RPC 2.0 on stdio: indexDocument, searchDocuments, and
// getDocument. All parsing, indexing, and querying happens on the local
// machine; document content never leaves the host.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/kadirpekel/mydocs-mcp/cmd/mydocs-mcp@latest
//
// Create a configuration file (optional, every field has a default):
//
//	yaml
//	server:
//	  document_roots: ["${HOME}/notes", "./docs"]
//	store:
//	  database_path: "./mydocs.db"
//	watcher:
//	  enabled: true
//
// Register the binary with an MCP client (for example in a client's
// server manifest):
//
//	{
//	  "mcpServers": {
//	    "mydocs": {
//	      "command": "mydocs-mcp",
//	      "args": ["--config", "mydocs.yaml"]
//	    }
//	  }
//	}
//
// # Using as Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/kadirpekel/mydocs-mcp/pkg/store"
//	    "github.com/kadirpekel/mydocs-mcp/pkg/tools"
//	    "github.com/kadirpekel/mydocs-mcp/pkg/protocol"
//	)
//
// # Architecture
//
// The server is a small pipeline around a single SQLite database:
//
//	MCP Client ⇄ stdio ⇄ protocol.Engine → tools.Registry → store.Store
//	                                File Watcher → tools.Indexer ↗
//
// The protocol engine owns stdout exclusively; logs go to stderr or a
// file. The watcher keeps the index current while the server runs, and
// every tool call works against the same store the watcher feeds.
//
// # License
//
// AGPL-3.0 - See LICENSE.md for details.
package mydocs
