package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/tdal/internal/config"
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/runtime/client"
	"github.com/satishbabariya/tdal/schema"
)

// operation decodes a query document and runs it against one delegate.
type operation func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error)

var operations = map[string]operation{
	"findMany": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.FindArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.FindMany(ctx, args)
	},
	"findFirst": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.FindArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.FindFirst(ctx, args)
	},
	"findFirstOrThrow": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.FindArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.FindFirstOrThrow(ctx, args)
	},
	"findUnique": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.UniqueArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.FindUnique(ctx, args)
	},
	"findUniqueOrThrow": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.UniqueArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.FindUniqueOrThrow(ctx, args)
	},
	"create": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.CreateArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.Create(ctx, args)
	},
	"createMany": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.CreateManyArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		n, err := d.CreateMany(ctx, args)
		return map[string]int64{"count": n}, err
	},
	"createManyAndReturn": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.CreateManyArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.CreateManyAndReturn(ctx, args)
	},
	"update": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.UpdateArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.Update(ctx, args)
	},
	"updateMany": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.UpdateManyArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		n, err := d.UpdateMany(ctx, args)
		return map[string]int64{"count": n}, err
	},
	"upsert": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.UpsertArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.Upsert(ctx, args)
	},
	"delete": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.DeleteArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.Delete(ctx, args)
	},
	"deleteMany": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		where, err := dec.Where(d.Name(), doc["where"])
		if err != nil {
			return nil, err
		}
		n, err := d.DeleteMany(ctx, where)
		return map[string]int64{"count": n}, err
	},
	"count": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.CountArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		if len(args.Select) > 0 {
			return d.CountFields(ctx, args)
		}
		n, err := d.Count(ctx, args)
		return map[string]int64{"count": n}, err
	},
	"aggregate": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.AggregateArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.Aggregate(ctx, args)
	},
	"groupBy": func(ctx context.Context, d *client.Delegate, dec *ast.Decoder, doc map[string]any) (any, error) {
		args, err := dec.GroupByArgs(d.Name(), doc)
		if err != nil {
			return nil, err
		}
		return d.GroupBy(ctx, args)
	},
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type queryOptions struct {
	file   string
	data   string
	output string
}

func newQueryCommand(a *app) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <entity> <operation>",
		Short: "Run a query document against the database",
		Long: fmt.Sprintf(`Run one operation on an entity. The arguments are a Prisma-shaped JSON or YAML
document given with --data, read from --file, or from stdin with --file -.

Operations: %s`, strings.Join(operationNames(), ", ")),
		Example: `  tdal query Product findMany -d '{"where": {"price": {"lt": 10}}, "orderBy": {"sku": "asc"}}'
  tdal query Order create -f order.yaml -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), a, opts, args[0], args[1], cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read the query document from a file (- for stdin)")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "query document as inline JSON or YAML")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table, json, yaml or msgpack")
	return cmd
}

func runQuery(ctx context.Context, a *app, opts *queryOptions, entity, opName string, stdin io.Reader) error {
	op, ok := operations[opName]
	if !ok {
		return fmt.Errorf("unknown operation %q (want one of %s)", opName, strings.Join(operationNames(), ", "))
	}
	render, ok := renderers[opts.output]
	if !ok {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	doc, err := readQueryDocument(opts, stdin)
	if err != nil {
		return err
	}

	reg, _, err := a.registry()
	if err != nil {
		return err
	}
	e, err := reg.GetEntity(entity)
	if err != nil {
		return err
	}
	pool, err := a.open(ctx, reg)
	if err != nil {
		return err
	}
	defer pool.Close()
	c, err := a.client(pool, reg)
	if err != nil {
		return err
	}

	result, err := op(ctx, c.MustModel(e.Name), ast.NewDecoder(reg), doc)
	if err != nil {
		return err
	}
	return render(a.ui.Out, a, e, result)
}

func readQueryDocument(opts *queryOptions, stdin io.Reader) (map[string]any, error) {
	switch {
	case opts.data != "" && opts.file != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case opts.data != "":
		return ast.ReadDocument(strings.NewReader(opts.data))
	case opts.file == "-":
		return ast.ReadDocument(stdin)
	case opts.file != "":
		f, err := config.AppFs.Open(opts.file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ast.ReadDocument(f)
	}
	return map[string]any{}, nil
}

type renderer func(w io.Writer, a *app, e *schema.Entity, result any) error

var renderers = map[string]renderer{
	"json": func(w io.Writer, _ *app, _ *schema.Entity, result any) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
	"yaml": func(w io.Writer, _ *app, _ *schema.Entity, result any) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	},
	"msgpack": func(w io.Writer, _ *app, _ *schema.Entity, result any) error {
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		return enc.Encode(result)
	},
	"table": renderTable,
}

func renderTable(w io.Writer, a *app, e *schema.Entity, result any) error {
	var rows []client.Row
	switch r := result.(type) {
	case []client.Row:
		rows = r
	case client.Row:
		if r == nil {
			a.ui.Info("No %s found", e.Name)
			return nil
		}
		rows = []client.Row{r}
	case map[string]int64:
		row := client.Row{}
		for k, v := range r {
			row[k] = v
		}
		rows = []client.Row{row}
	default:
		_, err := fmt.Fprintln(w, result)
		return err
	}
	if len(rows) == 0 {
		a.ui.Info("No %s found", e.Name)
		return nil
	}

	headers := columns(e, rows)
	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(headers))
		for i, h := range headers {
			line[i] = cell(row[h])
		}
		data = append(data, line)
	}
	if err := a.ui.Table(headers, data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d row(s)\n", len(rows))
	return err
}

// columns lists the entity's scalar fields present in rows, then any other keys in name order.
func columns(e *schema.Entity, rows []client.Row) []string {
	seen := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	var cols []string
	for _, name := range e.ScalarNames() {
		if seen[name] {
			cols = append(cols, name)
			delete(seen, name)
		}
	}
	var rest []string
	for k := range seen {
		rest = append(rest, k)
	}
	slices.Sort(rest)
	return append(cols, rest...)
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.Format(time.RFC3339)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case []client.Row:
		return fmt.Sprintf("[%d]", len(v))
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
