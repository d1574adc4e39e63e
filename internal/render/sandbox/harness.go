package sandbox

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"scenecast/internal/render"
)

// DefaultLibraries are preloaded into every page in this order.
var DefaultLibraries = []string{
	"https://cdn.jsdelivr.net/npm/three@0.155.0/build/three.min.js",
	"https://cdn.jsdelivr.net/npm/gsap@3.12.5/dist/gsap.min.js",
	"https://cdn.jsdelivr.net/npm/troika-three-text@0.47.0/dist/troika-three-text.umd.min.js",
	"https://cdn.babylonjs.com/babylon.js",
}

// handleName is the global the harness exposes to the host. Scripts never
// need it; they only define the frame hook.
const handleName = "__scenecast"

// The guard runs before any library so resource load failures, which only
// reach window during the capture phase, are recorded too.
const guardJS = `(function () {
  var state = { error: null, ready: false, hook: null };
  function fail(msg) {
    if (state.error === null) { state.error = String(msg || "unknown error"); }
  }
  window.addEventListener("error", function (e) {
    var t = e && e.target;
    if (t && t !== window && t.tagName === "SCRIPT") {
      fail("failed to load " + t.src);
      return;
    }
    fail(e.error && e.error.stack ? e.error.stack : e.message);
  }, true);
  window.addEventListener("unhandledrejection", function (e) {
    var r = e.reason;
    fail("unhandled rejection: " + (r && r.message ? r.message : r));
  });
  var api = {
    ready: function () { return state.ready || state.error !== null; },
    error: function () { return state.error; },
    advance: function (i) {
      if (state.error !== null) { return Promise.resolve({ ok: false, error: state.error }); }
      try {
        state.hook(i);
      } catch (e) {
        fail(e && e.stack ? e.stack : e);
        return Promise.resolve({ ok: false, error: state.error });
      }
      return new Promise(function (resolve) {
        requestAnimationFrame(function () {
          resolve(state.error === null ? { ok: true } : { ok: false, error: state.error });
        });
      });
    },
    _run: function (src) {
      try {
        (0, eval)(src);
        var hook = window.renderFrame;
        if (typeof hook !== "function") {
          fail("renderFrame is not a function after setup");
        } else {
          state.hook = hook;
        }
      } catch (e) {
        fail(e && e.stack ? e.stack : e);
      }
      state.ready = true;
    }
  };
  Object.defineProperty(window, "` + handleName + `", { value: api });
})();`

// Harness returns the page that loads libs, runs script once and exposes
// the frame handle. The script is embedded as a JSON string so its text
// can never close the surrounding tag.
func Harness(script render.Script, vp render.Viewport, libs []string) (string, error) {
	src, err := json.Marshal(script.Source())
	if err != nil {
		return "", fmt.Errorf("encode script: %w", err)
	}
	// json.Marshal escapes <, > and & so "</script>" cannot appear.

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<style>html,body{margin:0;padding:0;width:%dpx;height:%dpx;overflow:hidden;background:#000}canvas{display:block}</style>\n", vp.Width, vp.Height)
	b.WriteString("<script>\n")
	b.WriteString(guardJS)
	b.WriteString("\n</script>\n")
	for _, lib := range libs {
		fmt.Fprintf(&b, "<script src=\"%s\"></script>\n", html.EscapeString(lib))
	}
	b.WriteString("</head>\n<body>\n<script>\n")
	fmt.Fprintf(&b, "window.%s._run(%s);\n", handleName, src)
	b.WriteString("</script>\n</body>\n</html>\n")
	return b.String(), nil
}
