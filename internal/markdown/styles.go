package markdown

// ComponentCSS styles the markup the pipeline emits around highlighted code.
const ComponentCSS = `.code-block { margin: 1em 0; border-radius: 6px; overflow: hidden; background: #272822; }
.code-block-header { display: flex; justify-content: space-between; align-items: center; padding: 4px 10px; font-size: 12px; color: #ccc; background: #1e1f1c; }
.code-block pre { margin: 0; padding: 10px; overflow-x: auto; }
.copy-button { display: inline-flex; gap: 4px; align-items: center; border: 0; background: transparent; color: inherit; cursor: pointer; font: inherit; }
.copy-button.copied .icon-copy { display: none; }
.copy-button.copied .icon-check { display: inline !important; }
.blocked-link { text-decoration: line-through; color: #888; }
.math-display { overflow-x: auto; margin: 0.5em 0; }
.math-error { font-family: monospace; }
img.emoji { height: 1.2em; width: 1.2em; vertical-align: -0.2em; margin: 0 0.05em; }
.markdown-fallback { white-space: pre-wrap; }
.streaming-cursor { display: inline-block; animation: cursor-blink 1s steps(1) infinite; }
@keyframes cursor-blink { 50% { opacity: 0; } }
`
