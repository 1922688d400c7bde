package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sqlrag/backend/internal/bootstrap"
)

// Translates a natural-language question into a parameterized SELECT and
// prints it. The question is everything after the program name.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sqlrag <question>")
		os.Exit(2)
	}
	question := strings.Join(os.Args[1:], " ")

	cfg := bootstrap.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, conn, err := bootstrap.BuildQueryService(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build query service: %v", err)
	}
	defer conn.Close()

	result, err := svc.GenerateQuery(ctx, question)
	if err != nil {
		log.Fatalf("Failed to generate query: %v", err)
	}

	fmt.Println(result.Compiled.SQL)
	if len(result.Compiled.Params) > 0 {
		fmt.Printf("-- params: %v\n", result.Compiled.Params)
	}
	fmt.Printf("-- %s\n", result.Compiled.Description)
	for _, warning := range result.Warnings {
		fmt.Printf("-- warning: %s\n", warning)
	}
	if result.Template != nil {
		fmt.Printf("-- template: %s (%.2f)\n", result.Template.Template.Name, result.Template.Score)
	}
}
