package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/colorfulnotion/zylith/client"
	"github.com/dop251/goja"
)

// newConsoleVM binds the pool queries into a JavaScript runtime. Every query
// is reachable as zylith.<name>(args...); failures throw.
func newConsoleVM(ctx context.Context, c *client.Client, out io.Writer) (*goja.Runtime, error) {
	vm := goja.New()

	err := vm.Set("pool_query", func(method string, args ...string) goja.Value {
		q, ok := queryByJS(method)
		if !ok {
			panic(vm.NewGoError(fmt.Errorf("unknown query %q, try zylith.help()", method)))
		}
		if len(args) != len(q.args) {
			panic(vm.NewGoError(fmt.Errorf("%s expects %d arguments (%s)", method, len(q.args), strings.Join(q.args, ", "))))
		}
		result, err := q.run(ctx, c, args)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(render(result))
	})
	if err != nil {
		return nil, err
	}

	err = vm.Set("print", func(args ...goja.Value) {
		for _, arg := range args {
			fmt.Fprintln(out, arg.Export())
		}
	})
	if err != nil {
		return nil, err
	}

	err = vm.Set("help", func() []string {
		return jsNames()
	})
	if err != nil {
		return nil, err
	}

	_, err = vm.RunString(`
		var zylith = new Proxy({}, {
			get: function(target, method) {
				if (method === "help") {
					return help;
				}
				return function(...args) {
					return pool_query(method, ...args.map(String));
				};
			}
		});
	`)
	if err != nil {
		return nil, err
	}
	return vm, nil
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "zylith_console_history.txt")
	}
	return filepath.Join(dir, "zylith_console_history.txt")
}

func runConsole(ctx context.Context, c *client.Client) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "zylith> ",
		HistoryFile: historyFile(),
	})
	if err != nil {
		return fmt.Errorf("start readline: %w", err)
	}
	defer rl.Close()

	vm, err := newConsoleVM(ctx, c, rl.Stdout())
	if err != nil {
		return fmt.Errorf("start console: %w", err)
	}

	fmt.Fprintf(rl.Stdout(), "pool %s\n", c.Contract().Padded())
	fmt.Fprintln(rl.Stdout(), "queries:", strings.Join(jsNames(), ", "))
	fmt.Fprintln(rl.Stdout(), `e.g. zylith.isNullifierSpent("0x1"); type 'exit' to quit`)

	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		value, err := vm.RunString(line)
		if err != nil {
			fmt.Fprintln(rl.Stdout(), "error:", err)
			continue
		}
		if value != nil && !goja.IsUndefined(value) {
			fmt.Fprintln(rl.Stdout(), value.Export())
		}
	}
}
