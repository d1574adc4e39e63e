package generate

import (
	"context"
	"regexp"

	"scenecast/internal/render"
)

// TemplateGenerator returns built-in scenes chosen by keywords in the
// prompt. It needs no network access and is fully deterministic.
type TemplateGenerator struct{}

var (
	solarPattern  = regexp.MustCompile(`(?i)solar\s+system|planet|orbit`)
	bouncePattern = regexp.MustCompile(`(?i)bounc\w*\s+ball|ball\s+bounc\w*`)
)

func (TemplateGenerator) Generate(ctx context.Context, promptContext string, durationMinutes float64, mode render.Mode) (render.Script, error) {
	if err := ctx.Err(); err != nil {
		return render.Script{}, err
	}
	prompt := PromptOf(promptContext)
	switch {
	case solarPattern.MatchString(prompt):
		return render.NewScript(solarSystemScene), nil
	case bouncePattern.MatchString(prompt):
		return render.NewScript(bouncingBallScene), nil
	default:
		return render.NewScript(spinningCubeScene), nil
	}
}

const sceneSetup = `const scene = new THREE.Scene();
const camera = new THREE.PerspectiveCamera(60, window.innerWidth / window.innerHeight, 0.1, 1000);
const renderer = new THREE.WebGLRenderer({ preserveDrawingBuffer: true, antialias: true });
renderer.setSize(window.innerWidth, window.innerHeight);
document.body.appendChild(renderer.domElement);
`

const solarSystemScene = sceneSetup + `renderer.setClearColor(0x000008);

const sun = new THREE.Mesh(new THREE.SphereGeometry(0.7, 32, 32), new THREE.MeshBasicMaterial({ color: 0xffdd33 }));
scene.add(sun);

const earth = new THREE.Mesh(new THREE.SphereGeometry(0.2, 32, 32), new THREE.MeshPhongMaterial({ color: 0x2266ff }));
scene.add(earth);

const moon = new THREE.Mesh(new THREE.SphereGeometry(0.06, 16, 16), new THREE.MeshPhongMaterial({ color: 0xbbbbbb }));
scene.add(moon);

const light = new THREE.PointLight(0xffffff, 2, 100);
scene.add(light);
scene.add(new THREE.AmbientLight(0x222222));

camera.position.set(0, 1.5, 3.5);
camera.lookAt(0, 0, 0);

window.renderFrame = function (frame) {
  const t = frame * 0.01;
  earth.position.set(Math.cos(t) * 1.6, 0, Math.sin(t) * 1.6);
  moon.position.set(earth.position.x + Math.cos(t * 12) * 0.35, 0, earth.position.z + Math.sin(t * 12) * 0.35);
  sun.rotation.y = t * 0.2;
  renderer.render(scene, camera);
};
`

const bouncingBallScene = sceneSetup + `renderer.setClearColor(0x222233);

const ball = new THREE.Mesh(new THREE.SphereGeometry(0.3, 32, 32), new THREE.MeshPhongMaterial({ color: 0xff3333, shininess: 100 }));
scene.add(ball);

const floor = new THREE.Mesh(new THREE.BoxGeometry(3, 0.1, 3), new THREE.MeshPhongMaterial({ color: 0x888888 }));
floor.position.y = -1;
scene.add(floor);

const light = new THREE.DirectionalLight(0xffffff, 1);
light.position.set(2, 4, 3);
scene.add(light);
scene.add(new THREE.AmbientLight(0x404040));

camera.position.set(0, 0.5, 3);
camera.lookAt(0, -0.3, 0);

// Each bounce keeps 80% of its height; the drop restarts every few seconds.
window.renderFrame = function (frame) {
  const period = 60;
  const cycle = Math.floor(frame / (period * 6));
  const local = frame % (period * 6);
  const bounce = Math.floor(local / period);
  const phase = (local % period) / period;
  const height = 1.6 * Math.pow(0.8, bounce);
  ball.position.y = -0.65 + height * 4 * phase * (1 - phase);
  ball.rotation.z = -frame * 0.05 + cycle;
  renderer.render(scene, camera);
};
`

const spinningCubeScene = sceneSetup + `renderer.setClearColor(0x101018);

const cube = new THREE.Mesh(new THREE.BoxGeometry(1, 1, 1), new THREE.MeshNormalMaterial());
scene.add(cube);

camera.position.z = 3;

window.renderFrame = function (frame) {
  cube.rotation.x = frame * 0.01;
  cube.rotation.y = frame * 0.02;
  renderer.render(scene, camera);
};
`
