package agent

import "github.com/a2aproject/a2a-go/a2a"

// CardVersion is advertised by both agents.
const CardVersion = "0.0.1"

var capabilities = a2a.AgentCapabilities{
	Streaming:              true,
	PushNotifications:      false,
	StateTransitionHistory: true,
}

// SQLAgentCard describes the natural-language to SQL agent served at url.
func SQLAgentCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               "MS-SQL Agent",
		Description:        "An agent that interacts with MS-SQL database to list tables and get schema.",
		URL:                url,
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Version:            CardVersion,
		Capabilities:       capabilities,
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills: []a2a.AgentSkill{
			{
				ID:          "ms_sql_database_interaction",
				Name:        "MS-SQL Database Interaction",
				Description: "Interacts with MS-SQL database to list tables and get schema for a given table.",
				Tags:        []string{"sql", "database", "mssql"},
				Examples: []string{
					"List all tables in the database.",
					"Show schema of Orders table.",
				},
				InputModes:  []string{"text"},
				OutputModes: []string{"text"},
			},
		},
	}
}

// OptimizeAgentCard describes the query optimization agent served at url.
func OptimizeAgentCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               "MS-SQL Optimize Query Agent",
		Description:        "An agent that optimizes MS-SQL queries for better performance.",
		URL:                url,
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Version:            CardVersion,
		Capabilities:       capabilities,
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text", "file"},
		Skills: []a2a.AgentSkill{
			{
				ID:          "ms_sql_query_optimization",
				Name:        "MS-SQL Query Optimization",
				Description: "Optimizes MS-SQL queries for better performance. (replaces queries with optimized versions)",
				Tags:        []string{"sql", "database", "optimization", "performance"},
				Examples: []string{
					"Optimize the following query: SELECT * FROM Orders WHERE OrderDate < GETDATE() - 30",
					"Improve the performance of this query: SELECT SUM(Amount) FROM Transactions GROUP BY AccountId",
				},
				InputModes:  []string{"text"},
				OutputModes: []string{"text", "file"},
			},
		},
	}
}
