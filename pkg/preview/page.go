package preview

import (
	"html/template"
	"net/http"

	"github.com/duochat/duochat/pkg/latex"
	"github.com/duochat/duochat/pkg/logger"
)

type pageData struct {
	Channel   string
	PollMS    int64
	Messages  template.HTML
	Shortcuts []latex.Shortcut
	Auth      bool
}

func renderLogin(w http.ResponseWriter, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPage.Execute(w, struct{ Error string }{errMsg}); err != nil {
		logger.ErrorCF("preview", "Login page render failed", map[string]interface{}{"error": err.Error()})
	}
}

const baseStyle = `
:root{
  --bg-primary:#0f1117;--bg-secondary:#161822;--bg-tertiary:#1c1f2e;
  --bg-input:#12141d;--border:#252836;--border-focus:#6c5ce7;
  --accent:#6c5ce7;--accent-hover:#5a4bd1;--accent-glow:rgba(108,92,231,.15);
  --text-primary:#e8e6f0;--text-secondary:#8b8a97;--text-muted:#5c5b66;
  --support:#f59e0b;--success:#34d399;--warning:#fbbf24;--error:#f87171;
  --radius:12px;
}
*{box-sizing:border-box;margin:0;padding:0}
html,body{height:100%}
body{
  font-family:system-ui,-apple-system,sans-serif;
  background:var(--bg-primary);color:var(--text-primary);
  -webkit-font-smoothing:antialiased;
}`

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>duochat - Login</title>
<style>` + baseStyle + `
body{display:flex;align-items:center;justify-content:center}
.login-card{width:100%;max-width:380px;padding:40px 32px;background:var(--bg-secondary);border:1px solid var(--border);border-radius:16px}
.login-card h1{font-size:20px;font-weight:600;text-align:center;margin-bottom:24px}
.login-error{padding:10px 14px;margin-bottom:20px;border:1px solid rgba(248,113,113,.2);border-radius:8px;font-size:13px;color:var(--error)}
.field{margin-bottom:16px}
.field label{display:block;font-size:13px;color:var(--text-secondary);margin-bottom:6px}
.field input{width:100%;padding:11px 14px;background:var(--bg-input);border:1px solid var(--border);border-radius:8px;color:var(--text-primary);font-size:14px;outline:none}
.field input:focus{border-color:var(--border-focus);box-shadow:0 0 0 3px var(--accent-glow)}
.login-btn{width:100%;padding:12px;margin-top:8px;background:var(--accent);color:#fff;border:none;border-radius:10px;font-size:14px;font-weight:600;cursor:pointer}
.login-btn:hover{background:var(--accent-hover)}
</style>
</head>
<body>
<form class="login-card" method="POST" action="/login">
  <h1>duochat preview</h1>
  {{if .Error}}<div class="login-error">{{.Error}}</div>{{end}}
  <div class="field"><label for="username">Username</label><input id="username" name="username" type="text" autocomplete="username" required autofocus></div>
  <div class="field"><label for="password">Password</label><input id="password" name="password" type="password" autocomplete="current-password" required></div>
  <button class="login-btn" type="submit">Sign in</button>
</form>
</body>
</html>`))

var chatPage = template.Must(template.New("chat").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>duochat</title>
<script>window.MathJax={tex:{inlineMath:[['\\(','\\)']],displayMath:[['\\[','\\]']]}};</script>
<script async src="https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-mml-chtml.js"></script>
<style>` + baseStyle + `
body{display:flex;flex-direction:column;overflow:hidden}
#header{padding:14px 24px;background:var(--bg-secondary);border-bottom:1px solid var(--border);display:flex;align-items:center;gap:12px}
#header h1{font-size:16px;font-weight:600}
.tabs{display:flex;gap:6px;margin-left:16px}
.tab{background:none;border:1px solid var(--border);border-radius:8px;color:var(--text-secondary);padding:6px 12px;font-size:13px;cursor:pointer}
.tab.active{border-color:var(--accent);color:var(--text-primary);background:var(--accent-glow)}
.idle{width:10px;height:10px;border-radius:50%;background:var(--success);animation:pulse 2s ease-in-out infinite}
.idle.off{visibility:hidden}
.header-right{margin-left:auto}
.logout-btn{border:1px solid var(--border);border-radius:8px;color:var(--text-secondary);padding:6px 12px;font-size:12px;text-decoration:none}
@keyframes pulse{0%,100%{opacity:1}50%{opacity:.4}}
#messages{flex:1;overflow-y:auto;padding:24px;display:flex;flex-direction:column;gap:14px}
.message{max-width:72%;padding:12px 16px;border-radius:var(--radius);line-height:1.6;font-size:14px;white-space:pre-wrap;word-wrap:break-word}
.user-message{align-self:flex-end;background:var(--accent);color:#fff}
.ai-message{align-self:flex-start;background:var(--bg-tertiary);border:1px solid var(--border)}
.support-message{align-self:flex-start;background:var(--bg-tertiary);border:1px solid var(--support)}
.system-message{align-self:center;color:var(--text-muted);font-size:12px}
.message-time{font-size:11px;color:var(--text-muted);margin-top:6px}
.file-preview{max-width:100%;max-height:320px;border-radius:8px;margin-top:8px}
.file-download{color:inherit}
#status{padding:0 24px;min-height:26px;font-size:13px;color:var(--text-muted)}
#notice.info{color:var(--accent)}#notice.success{color:var(--success)}#notice.warning{color:var(--warning)}#notice.error{color:var(--error)}
#input-area{padding:14px 24px 18px;background:var(--bg-secondary);border-top:1px solid var(--border)}
.row{display:flex;gap:10px;align-items:flex-end}
#content{flex:1;padding:10px 12px;background:var(--bg-input);border:1px solid var(--border);border-radius:var(--radius);color:var(--text-primary);font:inherit;resize:none;min-height:44px}
#send{padding:10px 18px;background:var(--accent);color:#fff;border:none;border-radius:10px;cursor:pointer}
#send:disabled{opacity:.35}
.latex-bar{display:flex;gap:4px;margin-top:8px;flex-wrap:wrap}
.latex-bar button{background:var(--bg-tertiary);border:1px solid var(--border);border-radius:6px;color:var(--text-primary);padding:4px 8px;cursor:pointer}
</style>
</head>
<body>
<div id="header">
  <h1>duochat</h1>
  <span id="idle" class="idle{{if ne .Channel "ai"}} off{{end}}" title="Assistant idle"></span>
  <div class="tabs">
    <button class="tab{{if eq .Channel "ai"}} active{{end}}" data-channel="ai">AI assistant</button>
    <button class="tab{{if eq .Channel "support"}} active{{end}}" data-channel="support">Human support</button>
  </div>
  {{if .Auth}}<div class="header-right"><a href="/logout" class="logout-btn">Sign out</a></div>{{end}}
</div>
<div id="messages">{{.Messages}}</div>
<div id="status"><span id="typing"></span> <span id="notice"></span></div>
<form id="input-area" enctype="multipart/form-data">
  <div class="row">
    <textarea id="content" name="content" rows="1" placeholder="Type a message..."></textarea>
    <input id="file" name="file" type="file" multiple>
    <button id="send" type="submit">Send</button>
  </div>
  <div class="latex-bar">
    {{range .Shortcuts}}<button type="button" data-insert="{{.Command}}" title="{{.Description}}">{{.Symbol}}</button>{{end}}
    <button type="button" id="formula">Formula…</button>
  </div>
</form>
<script>
const pollMS={{.PollMS}};
const msgs=document.getElementById("messages"),form=document.getElementById("input-area"),
      content=document.getElementById("content"),fileInput=document.getElementById("file"),
      sendBtn=document.getElementById("send"),typing=document.getElementById("typing"),
      notice=document.getElementById("notice"),idle=document.getElementById("idle");
let version=-1,noticeTimer=null;
function typeset(){if(window.MathJax&&MathJax.typesetPromise){MathJax.typesetPromise([msgs]).catch(()=>{})}}
function showNotice(n){
  notice.className=n.level;notice.textContent=n.text;
  clearTimeout(noticeTimer);noticeTimer=setTimeout(()=>{notice.textContent=""},4000);
}
function setChannel(ch){
  document.querySelectorAll(".tab").forEach(t=>t.classList.toggle("active",t.dataset.channel===ch));
  idle.classList.toggle("off",ch!=="ai");
}
async function refresh(){
  try{
    const r=await fetch("/messages");
    if(r.status===401){window.location.href="/login";return}
    const d=await r.json();
    setChannel(d.channel);
    typing.textContent=d.typing?"typing…":"";
    if(d.notice)showNotice(d.notice);
    if(d.version!==version){
      version=d.version;
      const atEnd=msgs.scrollTop+msgs.clientHeight>=msgs.scrollHeight-8;
      msgs.innerHTML=d.html;typeset();
      if(atEnd)msgs.scrollTop=msgs.scrollHeight;
    }
  }catch(e){}
}
function wrap(f){f=f.trim();if(!f)return"";return(f.includes("\\begin{")||f.includes("\\["))?"$$"+f+"$$":"$"+f+"$"}
function insert(f){const w=wrap(f);if(w){content.value+=w+" ";content.focus()}}
document.querySelectorAll(".latex-bar [data-insert]").forEach(b=>b.onclick=()=>insert(b.dataset.insert));
document.getElementById("formula").onclick=()=>{const f=prompt("LaTeX formula");if(f)insert(f)};
document.querySelectorAll(".tab").forEach(t=>t.onclick=async()=>{
  setChannel(t.dataset.channel);msgs.innerHTML="";
  await fetch("/switch?channel="+encodeURIComponent(t.dataset.channel),{method:"POST"});
  refresh();
});
form.onsubmit=async e=>{
  e.preventDefault();
  const body=new FormData(form);
  content.value="";fileInput.value="";sendBtn.disabled=true;
  const pending=fetch("/send",{method:"POST",body:body});
  setTimeout(refresh,50);
  try{await pending}catch(err){}
  sendBtn.disabled=false;refresh();
};
content.onkeydown=e=>{if(e.key==="Enter"&&!e.shiftKey){e.preventDefault();form.requestSubmit()}};
typeset();refresh();setInterval(refresh,pollMS);
</script>
</body>
</html>`))
