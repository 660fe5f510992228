// Package avatest runs a fake AVA portal over httptest for exercising
// the scraping stack end to end: login form, discipline menu,
// frm-principal course switching and the activity tab, all rendered
// with the same markers the real portal uses.
package avatest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

type Assignment struct {
	Name   string
	Codigo int64
	Status string
	// dd/mm/yyyy, same shape the portal renders
	Start string
	Due   string
	// "003" marks a forum entry
	Tipo string
}

type Discipline struct {
	IdCurso     int64
	CodCurso    int64
	Name        string
	Online      bool
	Assignments []Assignment
}

type Account struct {
	RA          string
	Senha       string
	Disciplines []Discipline
}

type session struct {
	ra       string
	selected *Discipline
}

type Portal struct {
	mu       sync.Mutex
	accounts map[string]Account
	sessions map[string]*session
	counter  int

	// error text served in lb_conteudo on a rejected login
	LoginErrorText string
}

func NewPortal(accounts ...Account) *Portal {
	p := &Portal{
		accounts:       map[string]Account{},
		sessions:       map[string]*session{},
		LoginErrorText: "RA ou senha inválidos.",
	}
	for _, a := range accounts {
		p.accounts[a.RA] = a
	}
	return p
}

func (p *Portal) Server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.php", p.handleLogin)
	mux.HandleFunc("/principal.php", p.handleMain)
	mux.HandleFunc("/ferramentas/principal.php", p.handleDiscipline)
	mux.HandleFunc("/ferramentas/atividade.php", p.handleActivity)
	return httptest.NewServer(mux)
}

func (p *Portal) session(r *http.Request) *session {
	cookie, err := r.Cookie("AVASESSID")
	if err != nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[cookie.Value]
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, `<html><body>
		<form method="post" action="principal.php">
			<input type="text" name="user" value="">
			<input type="password" name="Password" value="">
		</form>
	</body></html>`)
}

func (p *Portal) handleMain(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		r.ParseForm()
		ra := r.PostForm.Get("user")
		senha := r.PostForm.Get("Password")

		p.mu.Lock()
		account, ok := p.accounts[ra]
		if !ok || account.Senha != senha {
			p.mu.Unlock()
			fmt.Fprintf(w, `<html><body><div id="lb_conteudo">%s</div></body></html>`, p.LoginErrorText)
			return
		}
		p.counter++
		token := strconv.Itoa(p.counter)
		p.sessions[token] = &session{ra: ra}
		p.mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "AVASESSID", Value: token})
		p.renderMain(w, account)
		return
	}

	sess := p.session(r)
	if sess == nil {
		fmt.Fprintf(w, `<html><body><div id="lb_conteudo">%s</div></body></html>`, p.LoginErrorText)
		return
	}
	p.mu.Lock()
	account := p.accounts[sess.ra]
	p.mu.Unlock()
	p.renderMain(w, account)
}

func (p *Portal) renderMain(w http.ResponseWriter, account Account) {
	fmt.Fprint(w, `<html><body>`)
	fmt.Fprint(w, `<form id="frm-principal" method="post" action="principal.php">
		<input type="hidden" name="idCurso" value="">
		<input type="hidden" name="codCurso" value="">
	</form>`)
	fmt.Fprint(w, `<div id="menu0">`)
	for _, d := range account.Disciplines {
		fmt.Fprintf(w,
			`<div idcurso="%d" codigo="%d"><span class="md">%s</span></div>`,
			d.IdCurso, d.CodCurso, d.Name,
		)
	}
	fmt.Fprint(w, `</div></body></html>`)
}

func (p *Portal) handleDiscipline(w http.ResponseWriter, r *http.Request) {
	sess := p.session(r)
	if sess == nil {
		http.Error(w, "no session", http.StatusForbidden)
		return
	}

	if r.Method == http.MethodPost {
		r.ParseForm()
		idCurso, _ := strconv.ParseInt(r.PostForm.Get("idCurso"), 10, 64)

		p.mu.Lock()
		account := p.accounts[sess.ra]
		sess.selected = nil
		for i := range account.Disciplines {
			if account.Disciplines[i].IdCurso == idCurso {
				sess.selected = &account.Disciplines[i]
				break
			}
		}
		p.mu.Unlock()
	}

	if sess.selected == nil {
		http.Error(w, "unknown discipline", http.StatusNotFound)
		return
	}

	fmt.Fprint(w, `<html><body>`)
	fmt.Fprintf(w, `<div id="titulo-disciplina"><p>%s</p></div>`, sess.selected.Name)
	if sess.selected.Online {
		fmt.Fprint(w, `<div id="aba-atividade"><a href="atividade.php">Atividade</a></div>`)
	}
	fmt.Fprint(w, `</body></html>`)
}

func (p *Portal) handleActivity(w http.ResponseWriter, r *http.Request) {
	sess := p.session(r)
	if sess == nil || sess.selected == nil {
		http.Error(w, "no discipline selected", http.StatusForbidden)
		return
	}

	fmt.Fprint(w, `<html><body><div id="div-conteudo">`)
	for _, a := range sess.selected.Assignments {
		tipo := ""
		if a.Tipo != "" {
			tipo = fmt.Sprintf(` tipo="%s"`, a.Tipo)
		}
		fmt.Fprintf(w, `<div class="filtro-conteudo"%s>
			<span class="marginLeft10">%s</span>
			<div codigo="%d"></div>
			<p class="sm2 white">%s</p>
			<div class="bloco-data">Início: %s - Término: %s</div>
		</div>`, tipo, a.Name, a.Codigo, a.Status, a.Start, a.Due)
	}
	fmt.Fprint(w, `</div></body></html>`)
}
