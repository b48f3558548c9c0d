package core

import "encoding/json"

const defaultManifest = `{
  "name": "os-lab-app",
  "version": "1.0.0",
  "main": "main.js",
  "scripts": {
    "start": "electron ."
  },
  "dependencies": {
    "electron": "^28.0.0"
  }
}`

const defaultMainJS = `const { app, BrowserWindow } = require('electron');

function createWindow() {
  const win = new BrowserWindow({ width: 800, height: 600 });
  win.loadFile('index.html');
}

app.whenReady().then(createWindow);

app.on('window-all-closed', () => {
  if (process.platform !== 'darwin') app.quit();
});
`

const defaultRendererJS = `document.addEventListener('DOMContentLoaded', () => {
  document.getElementById('app').textContent = 'Hello from OS_LAB';
});
`

const defaultHTML = `<!DOCTYPE html>
<html>
  <head>
    <title>OS_LAB</title>
  </head>
  <body>
    <div id="app"></div>
    <script src="renderer.js"></script>
  </body>
</html>
`

// DefaultTemplate returns the file tree mounted into workspaces created
// without initial files.
func DefaultTemplate() FileTree {
	return FileTree{
		"package.json": defaultManifest,
		"main.js":      defaultMainJS,
		"renderer.js":  defaultRendererJS,
		"index.html":   defaultHTML,
	}
}

// DefaultManifest is the package descriptor matching DefaultTemplate.
func DefaultManifest() json.RawMessage {
	return json.RawMessage(defaultManifest)
}
