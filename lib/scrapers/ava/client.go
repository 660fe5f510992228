// Package ava drives a scraping session through the AVA portal's
// multi-step UI and turns its server-rendered pages into snapshot
// values. One Client wraps one driver session and walks a strict
// state machine: unauthenticated → main page → discipline page →
// activity tab.
package ava

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"avaremind-backend/lib/htmlutil"
	"avaremind-backend/lib/scrapers/ava/driver"
	"avaremind-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var tracer = otel.Tracer("scrapers/ava")

const (
	loginPath      = "index.php"
	mainPath       = "principal.php"
	disciplinePath = "ferramentas/principal.php"
)

// forum entries are tagged with this tipo attribute by the portal
const forumTipo = "003"

type state int

const (
	stateUnauthenticated state = iota
	stateMain
	stateDiscipline
	stateActivity
)

type Client struct {
	session *driver.Session
	state   state
}

func NewClient(session *driver.Session) *Client {
	return &Client{session: session}
}

type LoginResult struct {
	Success bool
	// verbatim error text from the portal's own error element, shown
	// to the registrant as-is
	Message string
}

// Login posts the credentials into the portal's login form and waits
// for the main page. A login the portal rejects is not an error: the
// result carries the portal's message and the session simply stays
// unauthenticated. Retry policy belongs to the caller.
func (c *Client) Login(ctx context.Context, ra, senha string) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	err := c.session.Navigate(ctx, loginPath)
	if err != nil {
		return LoginResult{}, err
	}
	_, err = c.session.WaitFor(ctx, "input[name=user]", 0)
	if err != nil {
		if errors.Is(err, driver.ErrWaitTimeout) {
			span.SetStatus(codes.Error, "login form never appeared")
			return LoginResult{}, fmt.Errorf("%w: login form", ErrNavigation)
		}
		return LoginResult{}, err
	}

	err = c.session.FillAndSubmit(ctx, "form", map[string]string{
		"user":     ra,
		"Password": senha,
	})
	if err != nil {
		return LoginResult{}, err
	}

	_, err = c.session.WaitFor(ctx, "#frm-principal", 0)
	if err == nil {
		c.state = stateMain
		return LoginResult{Success: true}, nil
	}
	if !errors.Is(err, driver.ErrWaitTimeout) {
		return LoginResult{}, err
	}

	// the portal rejected us; surface its own words
	message, extractErr := c.session.ExtractHtml("#lb_conteudo")
	if extractErr != nil {
		span.SetStatus(codes.Error, "login failed without portal error element")
		return LoginResult{}, fmt.Errorf("%w: neither main page nor login error", ErrNavigation)
	}
	message = htmlutil.CleanText(message)
	span.SetAttributes(attribute.String("portal_message", message))
	return LoginResult{Success: false, Message: message}, nil
}

func (c *Client) requireAuthenticated() error {
	if c.state == stateUnauthenticated {
		return ErrNotAuthenticated
	}
	return nil
}

// gotoMain puts the session back on the portal's main page, the only
// place frm-principal (the discipline switcher) lives.
func (c *Client) gotoMain(ctx context.Context) error {
	err := c.session.Navigate(ctx, mainPath)
	if err != nil {
		return err
	}
	_, err = c.session.WaitFor(ctx, "#frm-principal", 0)
	if err != nil {
		if errors.Is(err, driver.ErrWaitTimeout) {
			return fmt.Errorf("%w: frm-principal not on main page", ErrNavigation)
		}
		return err
	}
	c.state = stateMain
	return nil
}

// ListDisciplines parses the discipline menu off the main page. An
// entry is a discipline iff it carries an idcurso attribute; a menu
// without any is an empty result, not a failure.
func (c *Client) ListDisciplines(ctx context.Context) ([]DisciplineSnapshot, error) {
	ctx, span := tracer.Start(ctx, "client:ListDisciplines")
	defer span.End()

	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if c.state != stateMain {
		if err := c.gotoMain(ctx); err != nil {
			return nil, err
		}
	}

	menu, err := c.session.WaitFor(ctx, "#menu0", 0)
	if err != nil {
		if errors.Is(err, driver.ErrWaitTimeout) {
			span.SetStatus(codes.Error, "discipline menu never appeared")
			return nil, fmt.Errorf("%w: menu0", ErrNavigation)
		}
		return nil, err
	}

	var snapshots []DisciplineSnapshot
	var parseErr error
	// a Caser is stateful, so build a fresh one per listing
	title := cases.Title(language.BrazilianPortuguese)
	menu.Find("div[idcurso]").EachWithBreak(func(_ int, entry *goquery.Selection) bool {
		idCurso, err := strconv.ParseInt(entry.AttrOr("idcurso", ""), 10, 64)
		if err != nil {
			parseErr = fmt.Errorf("%w: bad idcurso attribute: %v", ErrParse, err)
			return false
		}
		codCurso, err := strconv.ParseInt(entry.AttrOr("codigo", ""), 10, 64)
		if err != nil {
			parseErr = fmt.Errorf("%w: bad codigo attribute on discipline %d: %v", ErrParse, idCurso, err)
			return false
		}

		snapshot := DisciplineSnapshot{
			IdCurso:  idCurso,
			CodCurso: codCurso,
			Name:     title.String(htmlutil.CleanText(entry.Find("span.md").Text())),
		}
		if err := snapshot.Validate(); err != nil {
			parseErr = err
			return false
		}
		snapshots = append(snapshots, snapshot)
		return true
	})
	if parseErr != nil {
		span.RecordError(parseErr)
		span.SetStatus(codes.Error, "failed to parse discipline menu")
		return nil, parseErr
	}

	span.SetAttributes(attribute.Int("count", len(snapshots)))
	return snapshots, nil
}

// gotoDiscipline submits frm-principal with the discipline's ids, the
// same trick the portal's own scripts pull to switch courses.
func (c *Client) gotoDiscipline(ctx context.Context, idCurso, codCurso int64) error {
	if c.state != stateMain {
		if err := c.gotoMain(ctx); err != nil {
			return err
		}
	}

	err := c.session.FillAndSubmit(ctx, "#frm-principal", map[string]string{
		"idCurso":  strconv.FormatInt(idCurso, 10),
		"codCurso": strconv.FormatInt(codCurso, 10),
	}, driver.WithAction(disciplinePath))
	if err != nil {
		if errors.Is(err, driver.ErrNoElement) {
			return fmt.Errorf("%w: frm-principal vanished", ErrNavigation)
		}
		return err
	}

	_, err = c.session.WaitFor(ctx, "#titulo-disciplina", 0)
	if err != nil {
		if errors.Is(err, driver.ErrWaitTimeout) {
			return fmt.Errorf("%w: discipline page for idCurso=%d", ErrNavigation, idCurso)
		}
		return err
	}
	c.state = stateDiscipline
	return nil
}

// ClassifyDeliveryMode probes the discipline page for an activity
// tab. Presence within the (shorter) tab wait means the course runs
// online; that wait timing out means on-site. The timeout here is a
// signal, not a failure — only the tab wait gets this treatment, any
// other timeout still surfaces as a navigation error.
func (c *Client) ClassifyDeliveryMode(ctx context.Context, idCurso, codCurso int64) (DeliveryMode, error) {
	ctx, span := tracer.Start(ctx, "client:ClassifyDeliveryMode")
	defer span.End()
	span.SetAttributes(attribute.Int64("idcurso", idCurso))

	if err := c.requireAuthenticated(); err != nil {
		return ModeUnknown, err
	}
	if err := c.gotoDiscipline(ctx, idCurso, codCurso); err != nil {
		return ModeUnknown, err
	}

	_, err := c.session.WaitFor(ctx, "#aba-atividade", c.session.TabTimeout())
	if errors.Is(err, driver.ErrWaitTimeout) {
		span.SetAttributes(attribute.String("mode", string(ModeOnsite)))
		return ModeOnsite, nil
	}
	if err != nil {
		return ModeUnknown, err
	}
	span.SetAttributes(attribute.String("mode", string(ModeOnline)))
	return ModeOnline, nil
}

var dateRegex = regexp.MustCompile(`\d+/\d+/\d+`)

// ListAssignments clicks through to the discipline's activity tab and
// parses every filtro-conteudo block into a snapshot.
func (c *Client) ListAssignments(ctx context.Context, idCurso, codCurso int64) ([]AssignmentSnapshot, error) {
	ctx, span := tracer.Start(ctx, "client:ListAssignments")
	defer span.End()
	span.SetAttributes(attribute.Int64("idcurso", idCurso))

	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if err := c.gotoDiscipline(ctx, idCurso, codCurso); err != nil {
		return nil, err
	}

	tab, err := c.session.WaitFor(ctx, "#aba-atividade > a", c.session.TabTimeout())
	if err != nil {
		if errors.Is(err, driver.ErrWaitTimeout) {
			span.SetStatus(codes.Error, "no activity tab")
			return nil, fmt.Errorf("%w: activity tab for idCurso=%d", ErrNavigation, idCurso)
		}
		return nil, err
	}
	href := tab.First().AttrOr("href", "")
	if href == "" {
		return nil, fmt.Errorf("%w: activity tab has no link", ErrParse)
	}
	if err := c.session.Navigate(ctx, href); err != nil {
		return nil, err
	}

	content, err := c.session.WaitFor(ctx, "#div-conteudo", 0)
	if err != nil {
		if errors.Is(err, driver.ErrWaitTimeout) {
			return nil, fmt.Errorf("%w: div-conteudo on activity tab", ErrNavigation)
		}
		return nil, err
	}
	c.state = stateActivity

	var snapshots []AssignmentSnapshot
	var parseErr error
	content.Find("div.filtro-conteudo").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		snapshot, err := parseAssignmentBlock(block)
		if err != nil {
			parseErr = err
			return false
		}
		snapshots = append(snapshots, snapshot)
		return true
	})
	if parseErr != nil {
		span.RecordError(parseErr)
		span.SetStatus(codes.Error, "failed to parse activity blocks")
		return nil, parseErr
	}

	span.SetAttributes(attribute.Int("count", len(snapshots)))
	return snapshots, nil
}

func parseAssignmentBlock(block *goquery.Selection) (AssignmentSnapshot, error) {
	name := htmlutil.CleanText(block.Find("span.marginLeft10").First().Text())

	codigoAttr := block.Find("div[codigo]").First().AttrOr("codigo", "")
	codigo, err := strconv.ParseInt(codigoAttr, 10, 64)
	if err != nil {
		return AssignmentSnapshot{}, fmt.Errorf("%w: bad codigo attribute %q: %v", ErrParse, codigoAttr, err)
	}

	status := htmlutil.CleanText(block.Find("p.sm2.white").First().Text())

	dates := dateRegex.FindAllString(block.Find("div.bloco-data").Text(), -1)
	if len(dates) != 2 {
		return AssignmentSnapshot{}, fmt.Errorf("%w: expected 2 dates on assignment %d, got %d", ErrParse, codigo, len(dates))
	}
	startsAt, err := parsePortalDate(dates[0], false)
	if err != nil {
		return AssignmentSnapshot{}, err
	}
	// the due date is the second of the pair
	dueAt, err := parsePortalDate(dates[1], true)
	if err != nil {
		return AssignmentSnapshot{}, err
	}

	kind := TypeQuiz
	if block.AttrOr("tipo", "") == forumTipo {
		kind = TypeForum
	}

	snapshot := AssignmentSnapshot{
		Name:     name,
		Codigo:   codigo,
		Status:   status,
		Type:     kind,
		StartsAt: startsAt,
		DueAt:    dueAt,
	}
	return snapshot, snapshot.Validate()
}

// parsePortalDate turns a dd/mm/yyyy token into a concrete time.
// Deadlines land on 23:59:59 portal-local, the instant the portal
// closes the assignment. A date with the wrong shape is a hard parse
// failure, never skipped.
func parsePortalDate(s string, endOfDay bool) (time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: malformed date %q", ErrParse, s)
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed date %q", ErrParse, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed date %q", ErrParse, s)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed date %q", ErrParse, s)
	}

	if endOfDay {
		return timezone.EndOfDay(year, time.Month(month), day), nil
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, timezone.Location), nil
}
