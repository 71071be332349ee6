package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/codec"
	"xdao.co/acttoken/storage"
	"xdao.co/acttoken/storage/registry"
	"xdao.co/acttoken/storage/storeconfig"
	"xdao.co/acttoken/token"

	_ "xdao.co/acttoken/storage/badgerstore"
	_ "xdao.co/acttoken/storage/grpcstore"
	_ "xdao.co/acttoken/storage/memory"
	_ "xdao.co/acttoken/storage/sqlitestore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "encode":
		return cmdEncode(args[1:], out, errOut)
	case "decode":
		return cmdDecode(args[1:], out, errOut)
	case "estimate":
		return cmdEstimate(args[1:], out, errOut)
	case "cleanup":
		return cmdCleanup(args[1:], out, errOut)
	case "sweep":
		return cmdSweep(args[1:], out, errOut)
	case "list-backends":
		return cmdListBackends(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "acttoken: action token encoding CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  acttoken encode --handler <name> [--params <json>] [--ttl <dur>] [--force <strategy>] [store flags]")
	fmt.Fprintln(w, "  acttoken decode [--cleanup] [store flags] <token>")
	fmt.Fprintln(w, "  acttoken estimate --handler <name> [--params <json>]")
	fmt.Fprintln(w, "  acttoken cleanup [store flags] <token>")
	fmt.Fprintln(w, "  acttoken sweep --backend <name> [store flags]")
	fmt.Fprintln(w, "  acttoken list-backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - tokens are printed and read as unpadded URL-safe base64 (--hex for hex)")
	fmt.Fprintln(w, "  - --params is a JSON object; integers stay integers, floats stay floats")
	fmt.Fprintln(w, "  - --force takes inline-raw, inline-compressed, short-term or persistent")
	fmt.Fprintln(w, "  - stores come from --store-config, or --short-term/--persistent backend names")
	fmt.Fprintln(w, "  - the default memory backend does not outlive the process; reference")
	fmt.Fprintln(w, "    tokens that should survive need badger, sqlite or grpc")
}

// storeFlags selects the two tiers. A config file wins over the
// per-tier name flags.
type storeFlags struct {
	config     string
	shortTerm  string
	persistent string
}

func addStoreFlags(fs *flag.FlagSet) *storeFlags {
	sf := &storeFlags{}
	fs.StringVar(&sf.config, "store-config", "", "JSON store config file (overrides backend name flags)")
	fs.StringVar(&sf.shortTerm, "short-term", "memory", "Short-term backend name")
	fs.StringVar(&sf.persistent, "persistent", "memory", "Persistent backend name")
	registry.RegisterFlags(fs, registry.UsageCLI)
	return sf
}

func (sf *storeFlags) open() (shortTerm, persistent storage.Backend, closeAll func() error, err error) {
	if sf.config != "" {
		cfg, err := storeconfig.LoadFile(sf.config)
		if err != nil {
			return nil, nil, nil, err
		}
		return cfg.Open(registry.UsageCLI)
	}

	var closers []func() error
	closeFn := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	shortTerm, stClose, err := registry.Open(sf.shortTerm, registry.UsageCLI)
	if err != nil {
		return nil, nil, nil, err
	}
	if stClose != nil {
		closers = append(closers, stClose)
	}

	if sf.persistent == sf.shortTerm {
		return shortTerm, shortTerm, closeFn, nil
	}
	persistent, pClose, err := registry.Open(sf.persistent, registry.UsageCLI)
	if err != nil {
		_ = closeFn()
		return nil, nil, nil, err
	}
	if pClose != nil {
		closers = append(closers, pClose)
	}
	return shortTerm, persistent, closeFn, nil
}

func cmdEncode(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var handler string
	var paramsJSON string
	var ttl time.Duration
	var force string
	var useHex bool
	var limit int
	var noCompress bool

	fs.StringVar(&handler, "handler", "", "Handler name")
	fs.StringVar(&paramsJSON, "params", "", "Parameters as a JSON object")
	fs.DurationVar(&ttl, "ttl", 0, "Short-term TTL override (0 = default)")
	fs.StringVar(&force, "force", "", "Force a strategy instead of automatic selection")
	fs.BoolVar(&useHex, "hex", false, "Print the token as hex instead of base64")
	fs.IntVar(&limit, "limit", 0, "Transport byte ceiling override (0 = default)")
	fs.BoolVar(&noCompress, "no-compress", false, "Disable the inline-compressed strategy")
	sf := addStoreFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if handler == "" {
		fmt.Fprintln(errOut, "missing --handler")
		return 2
	}

	a, err := parseAction(handler, paramsJSON, ttl)
	if err != nil {
		fmt.Fprintf(errOut, "invalid action: %v\n", err)
		return 2
	}

	cfg := token.DefaultConfig()
	if limit > 0 {
		cfg.TransportLimit = limit
	}
	if noCompress {
		cfg.CompressionEnabled = false
	}

	shortTerm, persistent, closeFn, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open stores: %v\n", err)
		return 1
	}
	defer closeFn()

	enc, err := token.NewEncoder(shortTerm, persistent, cfg)
	if err != nil {
		fmt.Fprintf(errOut, "encoder: %v\n", err)
		return 1
	}

	ctx := context.Background()
	var tok []byte
	if force != "" {
		tag, terr := parseTag(force)
		if terr != nil {
			fmt.Fprintf(errOut, "invalid --force: %v\n", terr)
			return 2
		}
		tok, err = enc.EncodeForced(ctx, a, tag)
	} else {
		tok, err = enc.Encode(ctx, a)
	}
	if err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}

	fmt.Fprintf(errOut, "strategy: %s (%d bytes)\n", token.Tag(tok[0]), len(tok))
	_, _ = fmt.Fprintln(out, formatToken(tok, useHex))
	return 0
}

func cmdDecode(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var cleanup bool
	fs.BoolVar(&cleanup, "cleanup", false, "Delete short-term storage behind the token after decoding")
	sf := addStoreFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: acttoken decode [--cleanup] <token>")
		return 2
	}
	tok, err := parseToken(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid token: %v\n", err)
		return 2
	}

	shortTerm, persistent, closeFn, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open stores: %v\n", err)
		return 1
	}
	defer closeFn()

	ctx := context.Background()
	dec := token.NewDecoder(shortTerm, persistent)
	a, err := dec.Decode(ctx, tok)
	if err != nil {
		fmt.Fprintf(errOut, "decode: %v\n", err)
		return 1
	}
	if cleanup {
		if removed, cerr := dec.Cleanup(ctx, tok); cerr != nil {
			fmt.Fprintf(errOut, "cleanup: %v\n", cerr)
		} else if removed {
			fmt.Fprintln(errOut, "short-term record removed")
		}
	}
	return printAction(a, out, errOut)
}

func cmdEstimate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var handler string
	var paramsJSON string
	fs.StringVar(&handler, "handler", "", "Handler name")
	fs.StringVar(&paramsJSON, "params", "", "Parameters as a JSON object")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if handler == "" {
		fmt.Fprintln(errOut, "missing --handler")
		return 2
	}
	a, err := parseAction(handler, paramsJSON, 0)
	if err != nil {
		fmt.Fprintf(errOut, "invalid action: %v\n", err)
		return 2
	}

	// Estimation needs no storage.
	_, _ = fmt.Fprintln(out, codec.EstimateSize(a))
	return 0
}

func cmdCleanup(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(errOut)
	sf := addStoreFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: acttoken cleanup <token>")
		return 2
	}
	tok, err := parseToken(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid token: %v\n", err)
		return 2
	}

	shortTerm, persistent, closeFn, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open stores: %v\n", err)
		return 1
	}
	defer closeFn()

	removed, err := token.NewDecoder(shortTerm, persistent).Cleanup(context.Background(), tok)
	if err != nil {
		fmt.Fprintf(errOut, "cleanup: %v\n", err)
		return 1
	}
	if removed {
		_, _ = fmt.Fprintln(out, "removed")
	} else {
		_, _ = fmt.Fprintln(out, "nothing to remove")
	}
	return 0
}

func cmdSweep(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var backend string
	fs.StringVar(&backend, "backend", "", "Backend name to sweep")
	registry.RegisterFlags(fs, registry.UsageCLI)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if backend == "" {
		fmt.Fprintln(errOut, "missing --backend")
		return 2
	}

	b, closeFn, err := registry.Open(backend, registry.UsageCLI)
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", backend, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	n, err := b.SweepExpired(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "sweep: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "%d expired record(s) removed\n", n)
	return 0
}

func cmdListBackends(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("list-backends", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	for _, p := range registry.List(registry.UsageCLI) {
		if p.Description == "" {
			_, _ = fmt.Fprintf(out, "%s\n", p.Name)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", p.Name, p.Description)
	}
	return 0
}

func parseAction(handler, paramsJSON string, ttl time.Duration) (action.Action, error) {
	a := action.Action{Handler: handler, TTL: ttl}
	if paramsJSON != "" {
		raw, err := decodeParamsJSON(paramsJSON)
		if err != nil {
			return action.Action{}, err
		}
		a.Params, err = action.ParamsFromGo(raw)
		if err != nil {
			return action.Action{}, err
		}
	}
	return a, a.Validate()
}

// decodeParamsJSON keeps integer/float identity: encoding/json's default
// float64 decoding would turn every integer into a float.
func decodeParamsJSON(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse --params: %w", err)
	}
	return normalizeNumbers(raw).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}

func printAction(a action.Action, out io.Writer, errOut io.Writer) int {
	doc := map[string]any{"handler": a.Handler}
	if len(a.Params) > 0 {
		params := make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			params[k] = v.ToGo()
		}
		doc["params"] = params
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(errOut, "render: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, string(b))
	return 0
}

func parseTag(s string) (token.Tag, error) {
	switch s {
	case "inline-raw":
		return token.TagInlineRaw, nil
	case "inline-compressed":
		return token.TagInlineCompressed, nil
	case "short-term":
		return token.TagShortTermRef, nil
	case "persistent":
		return token.TagPersistentRef, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

func formatToken(tok []byte, useHex bool) string {
	if useHex {
		return hex.EncodeToString(tok)
	}
	return base64.RawURLEncoding.EncodeToString(tok)
}

func parseToken(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return hex.DecodeString(s)
}
