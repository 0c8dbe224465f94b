package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"otoledger/cmd/internal/passphrase"
	"otoledger/config"
	"otoledger/crypto"
	"otoledger/rpc"
)

var (
	rpcEndpoint  = defaultRPCEndpoint() // overridden by --rpc
	rpcAuthToken = os.Getenv("OTO_RPC_TOKEN")
)

// Seams replaced in tests.
var (
	dialRPC = func() (*rpc.Client, error) {
		return rpc.NewClient(rpcEndpoint, rpc.WithBearerToken(rpcAuthToken))
	}
	keystorePassphrase = func(confirm bool) (string, error) {
		var opts []passphrase.Option
		if confirm {
			opts = append(opts, passphrase.WithConfirmation())
		}
		return passphrase.NewSource(config.EnvKeystorePassphrase, "wallet keystore", opts...).Get()
	}
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "hash":
		return runHash(args[1:], stdout, stderr)
	case "derive":
		return runDerive(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	}
	if cmd, ok := txCommands[args[0]]; ok {
		return runTxCommand(cmd, args[1:], stdout, stderr)
	}
	if cmd, ok := queryCommands[args[0]]; ok {
		return runQueryCommand(cmd, args[1:], stdout, stderr)
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
	fmt.Fprintln(stderr, usage())
	return 1
}

func usage() string {
	return strings.TrimSpace(`
Usage: oto-cli [--rpc URL] <command> [flags]

Keys:
  keygen --out FILE                 create an encrypted wallet keystore
  address --key FILE                print the address of a keystore
  hash FILE                         print the content hash of FILE
  derive KIND [PARAMS...]           compute a derived address offline

Transactions (all take --key FILE):
  init-config    --collection ADDR
  init-user      --user ID --owner ADDR
  update-point   --user ID --delta N
  claim          --user ID --amount N
  mint           --to ADDR --amount N
  register-asset --hash HEX | --file FILE, --date YYYYMMDD --language N
  register-request --unit-price N --max-budget N --nonce N [--language N --start DATE --end DATE]
  apply-offer    --request ADDR --asset ADDR
  submit-proof   --request ADDR --offer ADDR --provider ADDR --hash HEX [--buyer-key FILE]

Queries:
  config | user ID | asset ADDR | request ADDR | offer ADDR | proof ADDR | balance ADDR | nonce ADDR

Environment: OTO_RPC_URL, OTO_RPC_TOKEN, OTO_KEYSTORE_PASSPHRASE`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("OTO_RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8547"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := keystorePassphrase(false)
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func printJSON(stdout io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

func fail(stderr io.Writer, err error) int {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		fmt.Fprintf(stderr, "Error: %s (code %d, %s)\n", rpcErr.Message, rpcErr.Code, rpc.KindForCode(rpcErr.Code))
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
