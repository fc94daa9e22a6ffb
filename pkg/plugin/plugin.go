// Package plugin is the native (non-`.js`/`.orch`) Plugin transport: an
// out-of-process binary speaking a small net/rpc "Operations" service,
// handshaked and supervised via hashicorp/go-plugin and logged via
// go-hclog, the way the teacher's plugins/grpc/loader.go supervises its
// gRPC plugin subprocesses. net/rpc is used here instead of go-plugin's
// gRPC mode since this module introduces no protobuf codegen (DESIGN.md).
package plugin

import (
	"context"
	"fmt"
	"net/rpc"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/orchidlang/orchid/pkg/interp"
	"github.com/orchidlang/orchid/pkg/value"
)

// Handshake is the magic-cookie handshake orchid plugin binaries must
// match, mirroring the teacher's GetHandshakeConfig.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ORCHID_PLUGIN",
	MagicCookieValue: "orchid_plugin_v1",
}

// CallArgs/CallReply are the net/rpc wire types for the Operations
// service a plugin binary registers with rpc.Server.
type CallArgs struct {
	Operation string
	Args      map[string]interface{}
}

type CallReply struct {
	Result interface{}
	Err    string
}

// operationsRPC is the net/rpc client stub dispensed by go-plugin.
type operationsRPC struct{ client *rpc.Client }

func (o *operationsRPC) Operations() ([]string, error) {
	var reply []string
	err := o.client.Call("Plugin.Operations", new(struct{}), &reply)
	return reply, err
}

func (o *operationsRPC) Call(args CallArgs) (CallReply, error) {
	var reply CallReply
	err := o.client.Call("Plugin.Call", args, &reply)
	return reply, err
}

// operationsPlugin implements go-plugin's Plugin interface for net/rpc
// mode: Server is only used on the plugin-binary side (not here), Client
// wraps the dispensed *rpc.Client for the host side.
type operationsPlugin struct{}

func (operationsPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return nil, fmt.Errorf("orchid host does not serve plugins")
}

func (operationsPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &operationsRPC{client: c}, nil
}

// Module is a live connection to one native plugin subprocess,
// implementing interp.PluginModule.
type Module struct {
	name       string
	client     *goplugin.Client
	rpcClient  *operationsRPC
	mu         sync.Mutex
	operations map[string]bool
}

// Loader matches interp.Options.NativePluginLoader's signature, so it can
// be assigned directly: `Options{NativePluginLoader: plugin.Loader}`.
func Loader(name, path string) (interp.PluginModule, error) {
	m, err := Load(name, path)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Load starts the plugin binary at path, performs the go-plugin
// handshake, and lists its declared operations.
func Load(name, path string) (*Module, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "orchid-plugin." + name,
		Level:  hclog.Warn,
		Output: os.Stderr,
	})

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         map[string]goplugin.Plugin{"operations": operationsPlugin{}},
		Cmd:             exec.Command(path),
		Logger:          logger,
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start plugin %q: %w", name, err)
	}

	raw, err := rpcClient.Dispense("operations")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin %q: %w", name, err)
	}

	ops, ok := raw.(*operationsRPC)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %q did not implement the operations service", name)
	}

	declared, err := ops.Operations()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to list operations for plugin %q: %w", name, err)
	}

	opSet := make(map[string]bool, len(declared))
	for _, o := range declared {
		opSet[o] = true
	}

	return &Module{name: name, client: client, rpcClient: ops, operations: opSet}, nil
}

func (m *Module) Name() string { return m.name }

func (m *Module) HasOperation(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operations[name]
}

// Operations lists the names this plugin declared at Load time, for
// Discover("alias.*") (spec.md §4.11).
func (m *Module) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.operations))
	for name := range m.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes one declared operation, converting Orchid Values to plain
// Go values for the net/rpc gob wire format and back.
func (m *Module) Call(ctx context.Context, operation string, args map[string]value.Value, pctx interp.PluginContext) (value.Value, error) {
	rawArgs := make(map[string]interface{}, len(args))
	for k, v := range args {
		rawArgs[k] = toRaw(v)
	}

	if pctx.Trace != nil {
		pctx.Trace("calling " + m.name + ":" + operation)
	}

	reply, err := m.rpcClient.Call(CallArgs{Operation: operation, Args: rawArgs})
	if err != nil {
		return value.Null, fmt.Errorf("plugin %s:%s RPC failed: %w", m.name, operation, err)
	}
	if reply.Err != "" {
		return value.Null, fmt.Errorf("plugin %s:%s: %s", m.name, operation, reply.Err)
	}
	return fromRaw(reply.Result), nil
}

func (m *Module) Teardown() error {
	m.client.Kill()
	return nil
}

func toRaw(v value.Value) interface{} {
	switch v.Kind {
	case value.KindString:
		return v.Str()
	case value.KindNumber:
		return v.Num()
	case value.KindBoolean:
		return v.Bool()
	case value.KindList:
		items := v.ListItems()
		out := make([]interface{}, len(items))
		for i, it := range items {
			out[i] = toRaw(it)
		}
		return out
	case value.KindDict:
		out := make(map[string]interface{})
		for _, k := range v.DictKeys() {
			vv, _ := v.DictGet(k)
			out[k] = toRaw(vv)
		}
		return out
	default:
		return v.String()
	}
}

func fromRaw(r interface{}) value.Value {
	switch t := r.(type) {
	case nil:
		return value.Null
	case string:
		return value.String(t)
	case float64:
		return value.Number(t)
	case int:
		return value.Number(float64(t))
	case bool:
		return value.Boolean(t)
	case []interface{}:
		items := make([]value.Value, len(t))
		for i, v := range t {
			items[i] = fromRaw(v)
		}
		return value.List(items)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		values := make(map[string]value.Value, len(t))
		for k, v := range t {
			keys = append(keys, k)
			values[k] = fromRaw(v)
		}
		return value.DictFrom(keys, values)
	default:
		return value.String(fmt.Sprintf("%v", t))
	}
}
