package card

// cardStyles 与前端名片的 450x250 黑底布局保持一致。
const cardStyles = `
  * { box-sizing: border-box; }
  body { margin: 0; background: #000; color: #e4e4e7; font-family: 'Inter', 'Helvetica Neue', Arial, sans-serif; }
  .ecard { width: 450px; height: 250px; background: #000; display: grid; text-align: start; }
  .ecard-inner { margin: 8px; padding: 16px; border: 1px solid #52525b; border-radius: 8px; display: flex; justify-content: space-between; overflow: hidden; }
  .photo { width: 130px; height: 150px; margin: auto 0; border-radius: 6px; object-fit: cover; background: #27272a; }
  .front-body { padding-left: 16px; flex: 1; display: flex; flex-direction: column; justify-content: center; min-width: 0; }
  .name { font-size: 20px; font-weight: 700; color: #fff; margin: 0 0 4px; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
  .profession { font-size: 14px; font-weight: 600; color: #60a5fa; margin: 0 0 8px; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
  .stack-title { font-size: 12px; font-weight: 600; color: #9ca3af; margin: 0 0 8px; }
  .skills { display: flex; flex-wrap: wrap; gap: 4px; max-height: 80px; overflow: hidden; align-content: flex-start; }
  .skill { background: #1f2937; color: #fff; font-size: 10px; padding: 2px 8px; border-radius: 9999px; border: 1px solid #374151; }
  .icons { display: flex; gap: 16px; margin-top: auto; padding: 8px 0 0; list-style: none; }
  .icons a { color: #d1d5db; text-decoration: none; font-size: 12px; font-weight: 600; }
  .back-left { display: flex; flex-direction: column; gap: 16px; width: 50%; }
  .label { font-size: 14px; font-weight: 500; color: #d1d5db; margin: 0 0 8px; }
  .resume a { color: #60a5fa; font-size: 12px; text-decoration: none; }
  .no-link { color: #4b5563; font-size: 12px; }
  .projects { display: flex; flex-direction: column; gap: 8px; max-height: 140px; overflow: hidden; }
  .projects a { color: #93c5fd; font-size: 12px; text-decoration: none; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
  .back-right { display: flex; flex-direction: column; align-items: center; justify-content: space-between; width: 50%; padding-left: 16px; }
  .qr-title { font-size: 12px; color: #9ca3af; margin: 8px 0; }
  .qr { background: #fff; padding: 8px; border-radius: 6px; line-height: 0; }
  .footer { text-align: center; margin-bottom: 4px; }
  .footer .name { font-size: 14px; font-weight: 600; margin: 0; }
  .footer .profession { font-size: 10px; color: #9ca3af; font-weight: 400; margin: 0; }
`

const faceTemplates = `
{{define "front"}}
<div class="ecard" id="ecard-front">
  <div class="ecard-inner">
    <img class="photo" src="{{.Photo}}" alt="Profile">
    <div class="front-body">
      <h2 class="name">{{.Front.DisplayName}}</h2>
      <p class="profession">{{.Front.DisplayProfession}}</p>
      <h3 class="stack-title">Tech Stack:</h3>
      <div class="skills">{{range .Front.SkillsShown}}<span class="skill">{{.}}</span>{{end}}</div>
      <ul class="icons">{{range .Icons}}<li><a href="{{.Href}}" title="{{.Kind}}">{{.Glyph}}</a></li>{{end}}</ul>
    </div>
  </div>
</div>
{{end}}

{{define "back"}}
<div class="ecard" id="ecard-back">
  <div class="ecard-inner">
    <div class="back-left">
      <div class="resume">
        <p class="label">Resume</p>
        {{if .Back.Resume.Present}}<a href="{{.ResumeHref}}">{{.Back.Resume.Label}}</a>{{else}}<span class="no-link">{{.Back.Resume.Label}}</span>{{end}}
      </div>
      <div>
        <p class="label">Projects</p>
        <div class="projects">{{range .Projects}}<a href="{{.Href}}">{{.Label}}</a>{{end}}</div>
      </div>
    </div>
    <div class="back-right">
      <div>
        <p class="qr-title">Scan for Portfolio</p>
        <div class="qr"><img src="{{.QR}}" width="125" height="125" alt="{{.Back.QRTarget}}"></div>
      </div>
      <div class="footer">
        <p class="name">{{.Back.FooterName}}</p>
        <p class="profession">{{.Back.FooterProfession}}</p>
      </div>
    </div>
  </div>
</div>
{{end}}
`

const facePageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>` + cardStyles + `</style>
</head>
<body>
{{if eq .Face "back"}}{{template "back" .}}{{else}}{{template "front" .}}{{end}}
</body>
</html>
`

const sharePageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Front.DisplayName}}'s eCard</title>
<style>` + cardStyles + `
  .page { min-height: 100vh; display: flex; flex-direction: column; align-items: center; justify-content: center; padding: 16px; }
  .title { font-size: 36px; color: #60a5fa; margin-bottom: 16px; }
  .flip { perspective: 1000px; margin-bottom: 32px; }
  .flip-inner { position: relative; width: 450px; height: 280px; transition: transform 0.9s; transform-style: preserve-3d; cursor: pointer; }
  .flip:hover .flip-inner { transform: rotateY(180deg); }
  .side { position: absolute; width: 100%; height: 100%; backface-visibility: hidden; }
  .side.back { transform: rotateY(180deg); }
  .share-link { color: #a1a1aa; font-size: 14px; }
  .downloads a { color: #d4d4d8; margin: 0 8px; font-size: 14px; }
  .hint { margin-top: 32px; color: #6b7280; font-size: 14px; }
</style>
</head>
<body>
<div class="page">
  <h1 class="title">{{.Front.DisplayName}}'s eCard</h1>
  <div class="flip"><div class="flip-inner">
    <div class="side front">{{template "front" .}}</div>
    <div class="side back">{{template "back" .}}</div>
  </div></div>
  {{if .ShareURL}}<p class="share-link">{{.ShareURL}}</p>{{end}}
  <p class="downloads"><a href="{{.QRImageURL}}">QR code</a></p>
  <p class="hint">Hover card to flip</p>
</div>
</body>
</html>
`
