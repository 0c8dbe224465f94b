package main

import (
	"context"
	"fmt"
	"io"
	"time"
)

const queryTimeout = 10 * time.Second

type queryCommand struct {
	method string
	args   int
}

var queryCommands = map[string]queryCommand{
	"config":  {method: "oto_getConfig"},
	"user":    {method: "oto_getUser", args: 1},
	"asset":   {method: "oto_getAsset", args: 1},
	"request": {method: "oto_getPurchaseRequest", args: 1},
	"offer":   {method: "oto_getOffer", args: 1},
	"proof":   {method: "oto_getProof", args: 1},
	"balance": {method: "oto_getBalance", args: 1},
	"nonce":   {method: "oto_getNonce", args: 1},
}

func runQueryCommand(cmd queryCommand, args []string, stdout, stderr io.Writer) int {
	if len(args) != cmd.args {
		fmt.Fprintf(stderr, "Error: %s takes %d argument(s)\n", cmd.method, cmd.args)
		return 1
	}
	client, err := dialRPC()
	if err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	params := make([]any, len(args))
	for i, a := range args {
		params[i] = a
	}
	var result any
	if err := client.Call(ctx, cmd.method, &result, params...); err != nil {
		return fail(stderr, err)
	}
	return exitOf(stderr, printJSON(stdout, result))
}
