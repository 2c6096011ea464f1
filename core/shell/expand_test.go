package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	env := MapLookup{
		"HOME":  "/root",
		"A":     "B",
		"LIST":  "x  y z",
		"EMPTY": "",
		"DOLL":  "$HOME",
		"?":     "3",
	}

	cases := []struct {
		line     string
		expected []string
	}{
		{"echo $HOME", []string{"echo", "/root"}},
		{"echo ${HOME}/bin", []string{"echo", "/root/bin"}},
		{"echo $A$A", []string{"echo", "BB"}},
		{"echo $UNSET", []string{"echo"}},
		{`echo "$UNSET"`, []string{"echo", ""}},
		{"echo '$HOME'", []string{"echo", "$HOME"}},
		{`echo "$HOME"`, []string{"echo", "/root"}},
		{`echo \$HOME`, []string{"echo", "$HOME"}},
		{`echo "\$HOME"`, []string{"echo", "$HOME"}},
		{`echo '$A'"$A"$A`, []string{"echo", "$ABB"}},
		{"echo $LIST", []string{"echo", "x", "y", "z"}},
		{`echo "$LIST"`, []string{"echo", "x  y z"}},
		{"echo pre$LIST", []string{"echo", "prex", "y", "z"}},
		{"echo $DOLL", []string{"echo", "$HOME"}},
		{"echo $? $", []string{"echo", "3", "$"}},
		{"echo ${1bad} ${open", []string{"echo", "${1bad}", "${open"}},
		{"echo $1", []string{"echo", "$1"}},
		{"echo a$EMPTY", []string{"echo", "a"}},
		{"echo ~ ~/bin ~$A", []string{"echo", "/root", "/root/bin", "~B"}},
		{`echo '~' "~/x" \~ a~ ~"/x" ~user`, []string{"echo", "~", "~/x", "~", "a~", "~/x", "~user"}},
		{"echo ~/$LIST", []string{"echo", "/root/x", "y", "z"}},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			tokens, err := Tokenize(tc.line)
			require.NoError(t, err)

			assert.Equal(t, tc.expected, Texts(Expand(tokens, env)))
		})
	}
}

func TestExpandTildeWithoutHome(t *testing.T) {
	tokens, err := Tokenize("cd ~/x")
	require.NoError(t, err)

	assert.Equal(t, []string{"cd", "~/x"}, Texts(Expand(tokens, MapLookup{})))
	assert.Equal(t, "/home/a/x", ExpandWord(tokens[1], MapLookup{"HOME": "/home/a"}))
}

func TestExpandIsPure(t *testing.T) {
	env := MapLookup{"A": "one two"}
	tokens, err := Tokenize(`x $A "$A" 'y'`)
	require.NoError(t, err)

	first := Expand(tokens, env)
	assert.Equal(t, first, Expand(tokens, env), "same inputs must give the same output")
	assert.Equal(t, first, Expand(first, env), "expanded tokens must not expand again")

	plain, err := Tokenize("no dollars here")
	require.NoError(t, err)
	assert.Equal(t, Texts(plain), Texts(Expand(plain, env)))
}

func TestExpandSingleQuotedPassesThrough(t *testing.T) {
	tok := Quoted("$A", SingleQuoted)
	out := Expand([]Token{tok}, MapLookup{"A": "no"})
	assert.Equal(t, []Token{tok}, out)
}

func TestExpandWord(t *testing.T) {
	env := MapLookup{"A": "x y"}
	tokens, err := Tokenize("pre$A")
	require.NoError(t, err)
	assert.Equal(t, "prex y", ExpandWord(tokens[0], env))
	assert.Equal(t, "", ExpandWord(Word("$NOPE"), nil))
}

func TestIsName(t *testing.T) {
	assert.True(t, IsName("_a1"))
	assert.True(t, IsName("PATH"))
	assert.False(t, IsName("1a"))
	assert.False(t, IsName(""))
	assert.False(t, IsName("a-b"))
}
