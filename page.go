package main

// indexHTML drives the session API. Reply HTML comes from the server already
// escaped, with persona labels highlighted.
const indexHTML = `<!DOCTYPE html>
<html lang="vi">
<head>
    <meta charset="utf-8">
    <title>innerchat</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; padding: 1.5rem; font-family: system-ui, -apple-system, sans-serif; background: #f9fafb; color: #1f2937; }
        h1 { font-size: 1.9rem; text-align: center; margin-bottom: 1.5rem; }
        h2 { font-size: 1.25rem; }
        .wrap { max-width: 56rem; margin: 0 auto; }
        .chat-wrap { max-width: 42rem; margin: 0 auto; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; margin-bottom: 1.5rem; }
        .card { border-radius: 1rem; padding: 1.5rem; cursor: pointer; box-shadow: 0 1px 3px rgba(0,0,0,.12); }
        .card p { font-size: .875rem; margin-top: .5rem; }
        .bg-pink-200 { background: #fbcfe8; }
        .bg-red-200 { background: #fecaca; }
        .bg-blue-200 { background: #bfdbfe; }
        .bg-green-200 { background: #bbf7d0; }
        .bg-default { background: #e5e7eb; }
        .group-btn { display: block; margin: 0 auto; background: #9333ea; color: white; border: 0; padding: .75rem 1.5rem; border-radius: .75rem; font-size: 1rem; cursor: pointer; }
        .group-btn:hover { background: #7e22ce; }
        .back { font-size: .875rem; color: #2563eb; text-decoration: underline; background: none; border: 0; cursor: pointer; padding: 0; margin-bottom: .5rem; }
        .log { background: white; border-radius: .75rem; box-shadow: 0 1px 3px rgba(0,0,0,.12); padding: 1rem; height: 500px; overflow-y: scroll; }
        .msg { margin-bottom: 1rem; }
        .msg.user { text-align: right; }
        .msg .who { font-weight: 600; }
        .msg.bot2bot { margin-left: 1.5rem; border-left: 3px solid #c084fc; padding-left: .75rem; }
        .text-red-600 { color: #dc2626; }
        .font-semibold { font-weight: 600; }
        .input-row { display: flex; gap: .5rem; margin-top: 1rem; }
        .input-row input { flex: 1; border: 1px solid #d1d5db; border-radius: .5rem; padding: .5rem .75rem; font-size: 1rem; }
        .input-row button { background: #2563eb; color: white; border: 0; border-radius: .5rem; padding: .5rem 1rem; cursor: pointer; }
        .input-row button:disabled { opacity: .5; cursor: wait; }
        .hidden { display: none; }
    </style>
</head>
<body>
<div id="select" class="wrap">
    <h1>Chọn chế độ trò chuyện</h1>
    <div id="cards" class="grid"></div>
    <button class="group-btn" id="group-btn">Trò chuyện với cả nhóm bản ngã</button>
</div>

<div id="chat" class="chat-wrap hidden">
    <button class="back" id="back">← Quay lại chọn chế độ</button>
    <h2 id="title"></h2>
    <div class="log" id="log"></div>
    <form class="input-row" id="form">
        <input type="text" id="input" placeholder="Nhập tin nhắn..." autocomplete="off">
        <button type="submit" id="send">Gửi</button>
    </form>
</div>

<script>
(function () {
    var session = null;

    function api(method, path, body) {
        var opts = { method: method, headers: { "Content-Type": "application/json" } };
        if (body !== undefined) opts.body = JSON.stringify(body);
        return fetch(path, opts).then(function (res) {
            if (res.status === 204) return null;
            return res.json().then(function (data) {
                if (!res.ok) throw new Error(data.error || res.statusText);
                return data;
            });
        });
    }

    function el(id) { return document.getElementById(id); }

    function appendMessage(m) {
        var div = document.createElement("div");
        div.className = "msg" + (m.role === "user" ? " user" : "") + (m.bot_to_bot ? " bot2bot" : "");
        var who = m.role === "user" ? "Bạn" : m.role;
        if (m.bot_to_bot && m.reply_to) who += " ↪ " + m.reply_to;
        var label = document.createElement("span");
        label.className = "who";
        label.textContent = who + ": ";
        var body = document.createElement("span");
        body.innerHTML = m.html;
        div.appendChild(label);
        div.appendChild(body);
        el("log").appendChild(div);
        el("log").scrollTop = el("log").scrollHeight;
    }

    function render(s) {
        session = s;
        var chatting = s.mode !== "select";
        el("select").classList.toggle("hidden", chatting);
        el("chat").classList.toggle("hidden", !chatting);
        el("title").textContent = "Bạn đang trò chuyện với: " +
            (s.mode === "group" ? "Toàn bộ bản ngã" : (s.persona ? s.persona.name : ""));
        el("log").innerHTML = "";
        (s.messages || []).forEach(appendMessage);
    }

    function loadPersonas() {
        return api("GET", "/api/personas").then(function (list) {
            var cards = el("cards");
            cards.innerHTML = "";
            list.forEach(function (p) {
                var card = document.createElement("div");
                card.className = "card " + (p.style || "bg-default");
                var h = document.createElement("h2");
                h.textContent = p.name;
                var d = document.createElement("p");
                d.textContent = "Trò chuyện 1:1 với bản ngã này";
                card.appendChild(h);
                card.appendChild(d);
                card.onclick = function () {
                    api("POST", "/api/sessions/" + session.id + "/persona", { persona_id: p.id }).then(render);
                };
                cards.appendChild(card);
            });
        });
    }

    el("group-btn").onclick = function () {
        api("POST", "/api/sessions/" + session.id + "/group").then(render);
    };

    el("back").onclick = function () {
        api("POST", "/api/sessions/" + session.id + "/reset").then(render);
    };

    el("form").onsubmit = function (e) {
        e.preventDefault();
        var text = el("input").value;
        if (!text) return;
        el("input").value = "";
        el("send").disabled = true;
        api("POST", "/api/sessions/" + session.id + "/messages", { content: text })
            .then(function (data) { render(data.session); })
            .catch(function (err) { alert(err.message); })
            .then(function () { el("send").disabled = false; });
    };

    loadPersonas()
        .then(function () { return api("POST", "/api/sessions"); })
        .then(render);
})();
</script>
</body>
</html>
`
