package main

import (
	"context"
	"fmt"
	"log"

	"github.com/semihalev/go-sqliter"
)

func main() {
	ctx := context.Background()

	// Open an in-memory database
	conn, err := sqliter.Open(":memory:", sqliter.WithInMemory())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer conn.Close()

	fmt.Println(sqliter.GetVersionInfo())
	fmt.Println(sqliter.GetNativeInfo())
	fmt.Println()

	// Create a table
	err = conn.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`)
	if err != nil {
		log.Fatalf("failed to create table: %v", err)
	}

	// Insert some data
	err = conn.Exec(ctx, `INSERT INTO users (id, name, age) VALUES (1, 'Alice', 30), (2, 'Bob', 25), (3, 'Charlie', 35)`)
	if err != nil {
		log.Fatalf("failed to insert data: %v", err)
	}

	// Query into a pooled result window
	w, err := sqliter.AcquireWindow(sqliter.DefaultWindowSize)
	if err != nil {
		log.Fatalf("failed to acquire window: %v", err)
	}
	defer w.Close()

	res, err := conn.QueryWindow(ctx, w, sqliter.WindowRequest{CountAllRows: true},
		`SELECT id, name, age FROM users WHERE age > ? ORDER BY age ASC`, 20)
	if err != nil {
		log.Fatalf("failed to query data: %v", err)
	}

	// Process the result
	fmt.Println("ID\tName\tAge")
	fmt.Println("--\t----\t---")
	for r := 0; r < w.NumRows(); r++ {
		id, _ := w.Long(r, 0)
		name, _ := w.String(r, 1)
		age, _ := w.Long(r, 2)
		fmt.Printf("%d\t%s\t%d\n", id, name, age)
	}
	fmt.Printf("(%d rows)\n", res.TotalRows)

	// Transaction example
	err = conn.WithTransaction(ctx, func(c *sqliter.Connection) error {
		return c.Exec(ctx, "INSERT INTO users (id, name, age) VALUES (?, ?, ?)", 4, "Dave", 40)
	})
	if err != nil {
		log.Fatalf("failed to insert in transaction: %v", err)
	}

	// Verify the transaction
	count, err := conn.QueryInt64(ctx, "SELECT COUNT(*) FROM users")
	if err != nil {
		log.Fatalf("failed to count users: %v", err)
	}

	fmt.Printf("\nTotal users after transaction: %d\n", count)
}
