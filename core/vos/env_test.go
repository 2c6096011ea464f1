package vos

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ExampleCopyEnv() {
	env := NewMapEnv()
	CopyEnv(env, EnvList{"A=B", "C=D", "E", "F=G=H"})

	fmt.Printf("Environ(): %q\n", env.Environ())
	fmt.Printf("Getenv(\"F\"): %q\n", env.Getenv("F"))

	// Output: Environ(): ["A=B" "C=D" "E=" "F=G=H"]
	// Getenv("F"): "G=H"
}

func ExampleNewMapEnvFromEnvList() {
	env := NewMapEnvFromEnvList([]string{"C=D", "A=B"})

	fmt.Printf("Environ(): %q\n", env.Environ())

	// Output: Environ(): ["A=B" "C=D"]
}

func ExampleMapEnv_Unsetenv() {
	env := NewMapEnv()
	env.Setenv("A", "B")
	env.Setenv("C", "D")

	fmt.Println("Before:", env.Environ())
	env.Unsetenv("A")
	fmt.Println("After:", env.Environ())

	// Output: Before: [A=B C=D]
	// After: [C=D]
}

func ExampleMapEnv_LookupEnv() {
	env := NewMapEnv()
	env.Setenv("A", "B")

	val, ok := env.LookupEnv("A")
	fmt.Println("Existing", "val:", val, "ok:", ok)
	val, ok = env.LookupEnv("B")
	fmt.Println("Missing", "val:", val, "ok:", ok)

	// Output: Existing val: B ok: true
	// Missing val:  ok: false
}

func TestMapEnvClone(t *testing.T) {
	env := NewMapEnvFromEnvList([]string{"A=1"})
	clone := env.Clone()
	clone.Setenv("A", "2")
	clone.Setenv("B", "3")

	assert.Equal(t, "1", env.Getenv("A"))
	assert.Equal(t, []string{"A"}, env.Keys())
	assert.Equal(t, []string{"A=2", "B=3"}, clone.Environ())
}

func TestMapEnvInvalidKey(t *testing.T) {
	env := NewMapEnv()
	assert.Error(t, env.Setenv("", "x"))
	assert.Error(t, env.Setenv("A=B", "x"))
	assert.Empty(t, env.Environ())
}
