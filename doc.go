// Package velograph compiles a declarative data model into a create, read,
// update and delete API over graph databases.
//
// A model is a list of types, each with properties and relationships, plus
// optional custom endpoints. The schema package compiles it, the engine
// package executes operations against a database.Pool, and the gql and server
// packages expose the result as GraphQL over HTTP.
//
//	cfg, err := config.Load("model.yml")
//	if err != nil {
//	    return err
//	}
//	pool, err := sqlgraph.NewPool(ctx, drv)
//	if err != nil {
//	    return err
//	}
//	eng, err := engine.New(ctx, cfg, engine.WithPool(pool))
//	if err != nil {
//	    return err
//	}
//	out, err := eng.Execute(ctx, nil, engine.ReadNodes("Project", value.Null()))
//
// This package holds the error taxonomy shared by every other package.
package velograph
