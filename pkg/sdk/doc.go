// Package jsonstore embeds the jsonstore document store in a Go program.
//
// Documents are schema-less JSON-like maps. Queries are partial documents:
// every path in the key must match (AND), values repeated under one path are
// alternatives (OR), and operator values narrow a path further.
//
//	client, _ := jsonstore.Open(ctx, jsonstore.WithSQLite("data/store.db"))
//	defer client.Close()
//
//	e, _ := client.Create(ctx, map[string]any{"name": "alice", "age": 30})
//	hits, _ := client.Search(ctx, map[string]any{
//	    "age": jsonstore.Gt(18),
//	}, jsonstore.Page(0, 20))
//
// # Typed collections
//
//	type Person struct {
//	    Name string `json:"name"`
//	    Age  int    `json:"age"`
//	}
//
//	people := jsonstore.NewCollection[Person](client)
//	id, _ := people.Create(ctx, Person{Name: "bob", Age: 41})
//	adults, _ := people.Find(ctx, map[string]any{"age": jsonstore.Gte(18)}, jsonstore.Page(0, 0))
package jsonstore
