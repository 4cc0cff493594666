package inline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripBlockComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"none", "a { color: red; }", "a { color: red; }"},
		{"single", "a /* x */ b", "a  b"},
		{"two on one line keeps the middle", "a /* x */ b /* y */ c", "a  b  c"},
		{"multi line is kept", "a /* x\ny\n*/ b", "a /* x\ny\n*/ b"},
		{"unclosed on its line", "/api/*</p>\n<h1>x</h1> */", "/api/*</p>\n<h1>x</h1> */"},
		{"closes later on the same line", "/api/* x */\n<h1>", "/api\n<h1>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripBlockComments(tt.in))
		})
	}
}

func TestScanStylesheets(t *testing.T) {
	buf := `<head>
<link rel="stylesheet" href="css/app.css" />
<link rel="icon" href="favicon.ico" />
<link href="/print.css" media="print"/>
<link rel="stylesheet" href="open.css">
</head>`

	refs := Scan(buf, Stylesheet)
	require.Len(t, refs, 2)

	assert.Equal(t, "css/app.css", refs[0].Name)
	assert.Equal(t, `<link rel="stylesheet" href="css/app.css" />`, refs[0].Anchor)
	assert.Equal(t, refs[0].Anchor, buf[refs[0].Start:refs[0].End])

	assert.Equal(t, "/print.css", refs[1].Name)
	assert.Equal(t, Stylesheet, refs[1].Kind)
}

func TestScanScripts(t *testing.T) {
	buf := `<script src="js/app.js"></script>
<script type="module" src="/main.js">
</script>
<script src="https://cdn.example.com/lib.js"></script>
<script src="http://cdn.example.com/old.js"></script>
<script src="inline.js">console.log(1)</script>
<script>var x = 1;</script>`

	refs := Scan(buf, Script)
	require.Len(t, refs, 2)
	assert.Equal(t, "js/app.js", refs[0].Name)
	assert.Equal(t, "/main.js", refs[1].Name)
	assert.Equal(t, "<script type=\"module\" src=\"/main.js\">\n</script>", refs[1].Anchor)
}

func TestScanImages(t *testing.T) {
	buf := `a { background: url(img/a.png); }
b { background: url("img/b.png"); }
c { background: url('/img/c.png'); }
d { background: url(https://cdn.example.com/d.png); }
e { background: url(data:image/png;base64,AAAA); }
f { background: url(""); }`

	refs := Scan(buf, Image)
	require.Len(t, refs, 3)

	assert.Equal(t, "img/a.png", refs[0].Name)
	assert.Equal(t, "url(img/a.png)", refs[0].Anchor)

	assert.Equal(t, "img/b.png", refs[1].Name)
	assert.Equal(t, `url("img/b.png")`, refs[1].Anchor)

	assert.Equal(t, "/img/c.png", refs[2].Name)
	assert.Equal(t, `url('/img/c.png')`, refs[2].Anchor)
}

func TestScanUnknownKind(t *testing.T) {
	assert.Empty(t, Scan(`url(a.png)`, Kind(42)))
	assert.Equal(t, "unknown", Kind(42).String())
}
