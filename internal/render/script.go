package render

import (
	"regexp"
	"strings"
)

// Script is generated scene source. Only Validate can produce a Script
// whose Validated reports true.
type Script struct {
	source    string
	validated bool
}

// NewScript wraps raw generator output.
func NewScript(source string) Script {
	return Script{source: source}
}

// Source returns the script text.
func (s Script) Source() string { return s.source }

// Validated reports whether the script passed Validate.
func (s Script) Validated() bool { return s.validated }

// Empty reports whether there is no script text at all.
func (s Script) Empty() bool { return strings.TrimSpace(s.source) == "" }

// FrameHook is the global function a script must define; it receives the
// frame index.
const FrameHook = "renderFrame"

// Structural elements a script must contain.
const (
	CheckScene    = "scene"
	CheckCamera   = "camera"
	CheckRenderer = "renderer"
	CheckSceneAdd = "scene-add"
	CheckRender   = "render-call"
	CheckHook     = "frame-hook"
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	OK      bool
	Reason  string
	Missing []string
}

// sceneAPI describes how one rendering library spells the required elements.
type sceneAPI struct {
	marker   *regexp.Regexp
	scene    *regexp.Regexp
	camera   *regexp.Regexp
	renderer *regexp.Regexp
	// add and render are patterns in which {scene} and {renderer} stand for
	// the variables the constructions were assigned to.
	add    []string
	render []string
}

const ident = `[A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*`

var (
	threeAPI = sceneAPI{
		marker:   regexp.MustCompile(`\bTHREE\.`),
		scene:    regexp.MustCompile(`(` + ident + `)\s*=\s*new\s+THREE\.Scene\s*\(|new\s+THREE\.Scene\s*\(`),
		camera:   regexp.MustCompile(`new\s+THREE\.\w*Camera\s*\(`),
		renderer: regexp.MustCompile(`(` + ident + `)\s*=\s*new\s+THREE\.WebGLRenderer\s*\(|new\s+THREE\.WebGLRenderer\s*\(`),
		add:      []string{`{scene}\.add\s*\(`},
		render:   []string{`{renderer}\.render\s*\(`},
	}
	babylonAPI = sceneAPI{
		marker:   regexp.MustCompile(`\bBABYLON\.`),
		scene:    regexp.MustCompile(`(` + ident + `)\s*=\s*new\s+BABYLON\.Scene\s*\(|new\s+BABYLON\.Scene\s*\(`),
		camera:   regexp.MustCompile(`new\s+BABYLON\.\w*Camera\s*\(`),
		renderer: regexp.MustCompile(`(` + ident + `)\s*=\s*new\s+BABYLON\.Engine\s*\(|new\s+BABYLON\.Engine\s*\(`),
		// Babylon attaches meshes to the scene passed at construction.
		add:    []string{`BABYLON\.MeshBuilder\.Create\w+\s*\(`, `{scene}\.add(?:Mesh|TransformNode)?\s*\(`},
		render: []string{`{renderer}\.runRenderLoop\s*\(`, `{scene}\.render\s*\(`},
	}
)

// The hook must be assigned on window (or globalThis) or declared as a top
// level function, and take exactly one parameter.
var hookPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:window|globalThis|self)\.renderFrame\s*=\s*(?:async\s+)?function\s*[\w$]*\s*\(\s*[A-Za-z_$][\w$]*\s*\)`),
	regexp.MustCompile(`(?:window|globalThis|self)\.renderFrame\s*=\s*(?:async\s+)?\(\s*[A-Za-z_$][\w$]*\s*\)\s*=>`),
	regexp.MustCompile(`(?:window|globalThis|self)\.renderFrame\s*=\s*(?:async\s+)?[A-Za-z_$][\w$]*\s*=>`),
	regexp.MustCompile(`(?m)^\s*function\s+renderFrame\s*\(\s*[A-Za-z_$][\w$]*\s*\)`),
}

// Validate checks s for the structure the pipeline relies on: a scene, a
// camera and a renderer are constructed, something is added to the scene,
// a render call is issued and the frame hook is defined. It is a textual
// check and never runs the script.
func Validate(s Script) (Script, ValidationResult) {
	if s.Empty() {
		return Script{source: s.source}, ValidationResult{
			Reason:  "script is empty",
			Missing: []string{CheckScene, CheckCamera, CheckRenderer, CheckSceneAdd, CheckRender, CheckHook},
		}
	}

	code := stripComments(s.source)

	api := threeAPI
	if babylonAPI.marker.MatchString(code) && !threeAPI.marker.MatchString(code) {
		api = babylonAPI
	}

	var missing, reasons []string
	fail := func(name, reason string) {
		missing = append(missing, name)
		reasons = append(reasons, reason)
	}

	sceneVar, hasScene := bound(api.scene, code, "scene")
	if !hasScene {
		fail(CheckScene, "no scene is created")
	}
	if !api.camera.MatchString(code) {
		fail(CheckCamera, "no camera is created")
	}
	rendererVar, hasRenderer := bound(api.renderer, code, "renderer")
	if !hasRenderer {
		fail(CheckRenderer, "no renderer is created")
	}
	vars := strings.NewReplacer(
		"{scene}", `(?:^|[^\w$.])`+regexp.QuoteMeta(sceneVar),
		"{renderer}", `(?:^|[^\w$.])`+regexp.QuoteMeta(rendererVar),
	)
	if !anyMatch(code, api.add, vars) {
		fail(CheckSceneAdd, "nothing is added to "+sceneVar)
	}
	if !anyMatch(code, api.render, vars) {
		fail(CheckRender, "no render call is issued")
	}
	if !hasHook(code) {
		fail(CheckHook, "no global renderFrame(frame) function is defined")
	}

	if len(missing) > 0 {
		return Script{source: s.source}, ValidationResult{
			Reason:  strings.Join(reasons, "; "),
			Missing: missing,
		}
	}
	return Script{source: s.source, validated: true}, ValidationResult{OK: true}
}

// bound reports whether re matches and returns the variable the construction
// is assigned to, or def when it is not assigned.
func bound(re *regexp.Regexp, code, def string) (string, bool) {
	m := re.FindStringSubmatch(code)
	if m == nil {
		return def, false
	}
	if m[1] != "" {
		return m[1], true
	}
	return def, true
}

func anyMatch(code string, patterns []string, vars *strings.Replacer) bool {
	for _, p := range patterns {
		if regexp.MustCompile("(?m)" + vars.Replace(p)).MatchString(code) {
			return true
		}
	}
	return false
}

func hasHook(code string) bool {
	for _, p := range hookPatterns {
		if p.MatchString(code) {
			return true
		}
	}
	return false
}

// stripComments removes line and block comments while leaving string,
// template and regular expression literals intact. Block comments keep their
// newlines so line anchored checks still see the same lines.
func stripComments(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	var prev byte // last significant byte outside comments
	for i := 0; i < len(code); {
		c := code[i]
		switch {
		case c == '/' && strings.HasPrefix(code[i:], "//"):
			if j := strings.IndexByte(code[i:], '\n'); j >= 0 {
				i += j
			} else {
				i = len(code)
			}
		case c == '/' && strings.HasPrefix(code[i:], "/*"):
			end := len(code)
			if j := strings.Index(code[i+2:], "*/"); j >= 0 {
				end = i + 2 + j + 2
			}
			b.WriteByte(' ')
			b.WriteString(strings.Repeat("\n", strings.Count(code[i:end], "\n")))
			i = end
		case c == '"' || c == '\'' || c == '`':
			j := skipQuoted(code, i)
			b.WriteString(code[i:j])
			prev, i = c, j
		case c == '/' && regexMayStart(prev):
			j := skipRegex(code, i)
			b.WriteString(code[i:j])
			// A regex is a value, so a following slash divides.
			prev, i = ')', j
		default:
			b.WriteByte(c)
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				prev = c
			}
			i++
		}
	}
	return b.String()
}

// skipQuoted returns the index just past the literal opened at code[i].
// Single and double quoted strings also end at a newline.
func skipQuoted(code string, i int) int {
	q := code[i]
	for j := i + 1; j < len(code); j++ {
		switch code[j] {
		case '\\':
			j++
		case q:
			return j + 1
		case '\n':
			if q != '`' {
				return j
			}
		}
	}
	return len(code)
}

// regexMayStart reports whether a slash after prev opens a regular
// expression rather than dividing.
func regexMayStart(prev byte) bool {
	return prev == 0 || strings.IndexByte("(,=:[!&|?{};+-*%<>~^", prev) >= 0
}

// skipRegex returns the index just past the regular expression literal at
// code[i], flags included, or i+1 when the line holds no closing slash.
func skipRegex(code string, i int) int {
	inClass := false
	for j := i + 1; j < len(code); j++ {
		switch c := code[j]; {
		case c == '\\':
			j++
		case c == '\n':
			return i + 1
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			j++
			for j < len(code) && (code[j] >= 'a' && code[j] <= 'z') {
				j++
			}
			return j
		}
	}
	return i + 1
}
