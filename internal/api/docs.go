package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>Mint Lens Bridge API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <a href="/docs/bridge" style="
    position: fixed;
    top: 12px;
    right: 16px;
    z-index: 9999;
    background: #161b22;
    border: 1px solid #30363d;
    border-radius: 6px;
    color: #58a6ff;
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
    font-size: 12px;
    font-weight: 500;
    padding: 5px 12px;
    text-decoration: none;
  ">WebSocket Bridge Docs →</a>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`

const bridgeDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>WebSocket Bridge · Mint Lens</title>
  <style>
    body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; font-size: 14px; line-height: 1.65; background: #0d1117; color: #c9d1d9; }
    nav { background: #161b22; border-bottom: 1px solid #30363d; padding: 0 24px; height: 48px; display: flex; align-items: center; gap: 24px; }
    nav .brand { font-weight: 600; color: #e6edf3; }
    a { color: #58a6ff; text-decoration: none; }
    main { max-width: 860px; margin: 0 auto; padding: 24px 16px 64px; }
    h2 { color: #e6edf3; border-bottom: 1px solid #21262d; padding-bottom: 6px; margin-top: 32px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px 16px; overflow-x: auto; }
    code { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
  </style>
</head>
<body>
  <nav><span class="brand">Mint Lens</span><a href="/docs">← REST API</a></nav>
  <main>
    <h2>Endpoint</h2>
    <p>Open a WebSocket to <code>/api/v1/bridge</code>. Each text frame is one JSON request; each response echoes the request <code>id</code>. Responses arrive as they complete, not in request order.</p>

    <h2>Request</h2>
<pre><code>{"id": 7, "type": "fetchMintInfo", "mintAddress": "7DdHyxLZQuudndfrX3ZD"}</code></pre>

    <h2>Response</h2>
    <p>Exactly one of <code>data</code> or <code>error</code> is set.</p>
<pre><code>{"id": 7, "data": {"decimals": 6, "mintStats": {...}, "holderStats": {...}}}
{"id": 7, "error": "API response not OK"}</code></pre>
    <table>
      <tr><th>Condition</th><th>error</th></tr>
      <tr><td>Upstream non-2xx status</td><td><code>API response not OK</code></td></tr>
      <tr><td>Transport failure</td><td>the transport error message</td></tr>
      <tr><td>Unknown request type</td><td><code>unknown request type</code></td></tr>
    </table>

    <h2>Activity feed</h2>
    <p>Every served request is published to <code>GET /api/v1/events?feeds=lookup</code> as a server-sent event:</p>
<pre><code>id: 12
event: lookup
data: {"address":"7DdHyxLZQuudndfrX3ZD","ok":true,"duration_ms":84,"at":"..."}</code></pre>
  </main>
</body>
</html>`
