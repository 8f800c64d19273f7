// Package prompt holds the model instructions used by the agents and keeps
// generated prompts inside a token budget.
package prompt

import "fmt"

// GenerateSQL is the instruction that turns a natural-language ask into a
// SQL Server query, given the schema document.
func GenerateSQL(schema, ask string) string {
	return fmt.Sprintf("You are an expert SQL developer specialized in Microsoft SQL Server.\n"+
		"Given the database schema below, convert the following natural language request into a valid MS SQL query.\n\n"+
		"Database schema:\n%s\n\n"+
		"User ask: %s\n"+
		"Only output the SQL query. No explanations.", schema, ask)
}

// OptimizeSQL is the instruction that asks for an optimized rewrite of a query.
func OptimizeSQL(sql string) string {
	return "You are a senior database optimization expert. Your task is to review and optimize the following " +
		"Microsoft SQL Server (MS SQL) query. Respond with ONLY the optimized SQL code, and nothing else: " + sql
}
