// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"context"
	"fmt"

	"github.com/canonical/sqlchain"

	_ "github.com/mattn/go-sqlite3"
)

type Person struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Team string `db:"team"`
}

func example() {
	ctx := context.Background()

	ds, err := sqlchain.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}

	_, err = ds.PlainDB().Exec(`
	CREATE TABLE person (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		team TEXT NOT NULL
	)`)
	if err != nil {
		panic(err)
	}

	var al = Person{Name: "Alastair", Team: "engineering"}
	var ed = Person{Name: "Ed", Team: "engineering"}
	var marco = Person{Name: "Marco", Team: "engineering"}
	var pedro = Person{Name: "Pedro", Team: "management"}
	var people = []Person{al, ed, marco, pedro}
	for i := range people {
		// Into reads the generated id back into the value.
		err := ds.Insert("person", people[i]).Into(ctx, &people[i])
		if err != nil {
			panic(err)
		}
	}

	var engineers []Person
	err = ds.From("person").
		WithFilterValue(map[string]any{"team": "engineering"}).
		WithSort("name", false).
		All(ctx, &engineers)
	if err != nil {
		panic(err)
	}
	for _, p := range engineers {
		fmt.Printf("%s is an engineer\n", p.Name)
	}

	// Moves happen transactionally.
	tx, err := ds.Begin(ctx, nil)
	if err != nil {
		panic(err)
	}
	pedro = people[3]
	pedro.Team = "engineering"
	if err := tx.Update("person", pedro).Run(ctx); err != nil {
		_ = tx.Rollback()
		panic(err)
	}
	if err := tx.Commit(); err != nil {
		panic(err)
	}

	var moved Person
	err = ds.From("person").
		WithFilterValue(map[string]any{"name": "Pedro"}).
		One(ctx, &moved)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s moved to %s\n", moved.Name, moved.Team)
}

func main() {
	example()
}
