// Package app provides application initialization and lifecycle management
// for the license portal. It wires configuration, logging, observability,
// storage, the license engine and the HTTP server together at startup, and
// tears them down in order on shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from environment and files
//	2. Initialize logging and observability
//	3. Open the SQLite store and audit log
//	4. Load key material and build the crypto services
//	5. Build the license engine and tenant directory
//	6. Set up HTTP handlers and middleware
//	7. Configure and start the HTTP server
//
// # Graceful Shutdown
//
// The package handles SIGINT and SIGTERM signals to ensure active requests
// are completed, the backup scheduler stops, and the database and log file
// are closed.
//
// All initialization errors are returned to the caller; the package does not
// call os.Exit() directly, leaving exit control to main.
package app
