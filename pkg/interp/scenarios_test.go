package interp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/parser"
	"github.com/orchidlang/orchid/pkg/provider"
	"github.com/orchidlang/orchid/pkg/value"
)

// run parses and executes src with a fresh Interpreter over the given
// Provider, mirroring SPEC_FULL.md's claim that scenarios A-H are driven
// against pkg/provider/stub.go.
func run(t *testing.T, src string, prov provider.Provider, opts Options) (value.Value, error) {
	t.Helper()
	prog, err := parser.ParseFile("scenario.orch", src)
	require.NoError(t, err)
	opts.Provider = prov
	it := New(opts)
	return it.Run(context.Background(), prog)
}

// A. x := 42 -> final value 42, number.
func TestScenarioA_NumberAssignment(t *testing.T) {
	result, err := run(t, "x := 42\n", &provider.Stub{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, value.KindNumber, result.Kind)
	assert.Equal(t, float64(42), result.Num())
}

// B. name := "world"\ng := "hello $name" -> g = "hello world".
func TestScenarioB_StringInterpolation(t *testing.T) {
	result, err := run(t, "name := \"world\"\ng := \"hello $name\"\n", &provider.Stub{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Str())
}

// C. fork with named branches each calling Search; result is a Dict keyed
// exactly {"a","b"}, each value derived from its own query.
func TestScenarioC_ForkNamedBranches(t *testing.T) {
	src := "data := fork:\n    a: Search(\"A\")\n    b: Search(\"B\")\n"
	result, err := run(t, src, &provider.Stub{}, Options{})
	require.NoError(t, err)
	require.Equal(t, value.KindDict, result.Kind)
	assert.ElementsMatch(t, []string{"a", "b"}, result.DictKeys())

	av, ok := result.DictGet("a")
	require.True(t, ok)
	bv, ok := result.DictGet("b")
	require.True(t, ok)

	assert.Contains(t, av.Str(), "A")
	assert.NotContains(t, av.Str(), "B")
	assert.Contains(t, bv.Str(), "B")
	assert.NotContains(t, bv.Str(), "A")
}

// D. An atomic block that asserts false rolls back its own binding (never
// observed outside), so the except clause sees the pre-block value of x.
func TestScenarioD_AtomicRollbackOnAssertFailure(t *testing.T) {
	src := "x := \"before\"\n" +
		"try:\n" +
		"    ###\n" +
		"    x := \"inside\"\n" +
		"    assert false, \"boom\"\n" +
		"    ###\n" +
		"except:\n" +
		"    result := x\n"
	result, err := run(t, src, &provider.Stub{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "before", result.Str())
}

// E. Two emits with no listener/on-handler buffer; Stream("E") drains both
// in arrival order.
func TestScenarioE_EmitBufferAndStream(t *testing.T) {
	src := "emit E(\"1\")\nemit E(\"2\")\nevents := Stream(\"E\")\n"
	result, err := run(t, src, &provider.Stub{}, Options{})
	require.NoError(t, err)
	require.Equal(t, value.KindList, result.Kind)
	items := result.ListItems()
	require.Len(t, items, 2)

	first, second := items[0].Event(), items[1].Event()
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "E", first.Name)
	assert.Equal(t, "1", first.Payload.Str())
	assert.Equal(t, "E", second.Name)
	assert.Equal(t, "2", second.Payload.Str())
}

// F. A Provider that always fails a reasoning macro: <retry=2, fallback="safe">
// retries twice beyond the first attempt (3 calls total) then falls back.
func TestScenarioF_RetryThenFallback(t *testing.T) {
	stub := &provider.Stub{
		ExecuteFn: func(operation, input string) (value.Value, error) {
			return value.Null, errs.New(errs.RuntimeError, errs.Position{}, "provider unavailable")
		},
	}
	result, err := run(t, "r := CoT(\"x\")<retry=2, fallback=\"safe\">\n", stub, Options{})
	require.NoError(t, err)
	assert.Equal(t, "safe", result.Str())
	assert.Equal(t, 3, stub.ExecuteCalls)
}

// G. String "/" delegates to literal substring removal: "banana" / "a" = "bnn".
func TestScenarioG_StringSlashSubtraction(t *testing.T) {
	src := "a := \"banana\"\nb := \"a\"\nc := a / b\n"
	result, err := run(t, src, &provider.Stub{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "bnn", result.Str())
}

// H. import cycle_a -> cycle_b -> cycle_a raises CyclicDependency naming
// both paths.
func TestScenarioH_ImportCycleDetection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cycle_a.orch"), []byte("import cycle_b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cycle_b.orch"), []byte("import cycle_a\n"), 0o644))

	_, err := run(t, "import cycle_a\n", &provider.Stub{}, Options{ScriptDir: dir})
	require.Error(t, err)

	oe, ok := err.(*errs.OrchidError)
	require.True(t, ok)
	assert.Equal(t, errs.CyclicDependency, oe.Kind)
	assert.Contains(t, oe.Message, "cycle_a")
	assert.Contains(t, oe.Message, "cycle_b")
}
