/*
Package sqliter manages SQLite connections, their compiled statements, and
windows of query results.

# Overview

Go-SQLiter sits between an SQLite engine and the code that queries it. It offers:

1. A per-connection LRU cache of compiled statements, kept in a Registry shared by every connection
2. Result windows: fixed-size arenas that hold a grid of typed cells for one page of a result set
3. A fill loop that copies rows from a running statement into a window, retrying busy and locked steps and restarting the window when the row the caller needs would not fit

Two engines are built in. ModerncEngine runs the pure Go transpilation of
SQLite and is the default. NativeEngine loads the system libsqlite3 at run
time without cgo; set SQLITER_LIBSQLITE3 to point it at a specific library.

# Example

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/semihalev/go-sqliter"
	)

	func main() {
		ctx := context.Background()

		conn, err := sqliter.Open("app.db", sqliter.WithVersion(1, func(c *sqliter.Connection) error {
			return c.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`)
		}, nil))
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer conn.Close()

		if err := conn.Exec(ctx, `INSERT INTO users (name, age) VALUES (?, ?)`, "Alice", 30); err != nil {
			log.Fatalf("failed to insert data: %v", err)
		}

		w, err := sqliter.AcquireWindow(sqliter.DefaultWindowSize)
		if err != nil {
			log.Fatalf("failed to get window: %v", err)
		}
		defer w.Close()

		res, err := conn.QueryWindow(ctx, w, sqliter.WindowRequest{CountAllRows: true},
			`SELECT id, name, age FROM users WHERE age > ?`, 20)
		if err != nil {
			log.Fatalf("failed to query data: %v", err)
		}

		fmt.Printf("%d rows, window starts at %d\n", res.TotalRows, res.StartPos)
		for row := 0; row < w.NumRows(); row++ {
			name, _ := w.String(row, 1)
			age, _ := w.Long(row, 2)
			fmt.Printf("User: %s, %d\n", name, age)
		}
	}

# Result Windows

Every cell takes a 16 byte slot and every row a 4 byte directory entry;
strings and blobs are appended after the row that owns them. A row that
does not fit is rolled back as a whole. Reads coerce between types the way
SQLite does: integers and floats convert to each other and format as text,
text parses as a number, and a BLOB only reads as bytes.

# Statement Cache

Statements run through Connection.Exec and the Query methods are compiled
once and cached by SQL text. When the cache is full the least recently used
statement is finalized. Closing a connection finalizes all of them.
Connection.Prepare returns a Statement outside the cache that the caller
closes.

# Cancellation

A context passed to a query interrupts the engine when it is done. A
connection made cancelable with ResetCancel(true) is also interrupted by
Cancel, until the next ResetCancel.
*/
package sqliter
