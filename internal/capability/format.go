package capability

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
)

// Curriculum views.
const (
	ViewSummary  = "summary"
	ViewFull     = "full"
	ViewOverview = "overview"
)

const (
	groupPreview       = 3
	summaryLevels      = 2
	summaryCourses     = 4
	overviewLevels     = 2
	overviewExamples   = 3
	notAvailable       = "No disponible"
	undergraduateTitle = "**Las carreras de grado son:**\n"
	graduateTitle      = "**Las carreras de postgrado son:**\n"
)

func money(v float64) string {
	if v <= 0 {
		return notAvailable
	}
	return fmt.Sprintf("$%.2f", v)
}

func moneyPtr(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return money(*v)
}

func joinOr(items []string) string {
	if len(items) == 0 {
		return notAvailable
	}
	return strings.Join(items, ", ")
}

func hours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func levelTitle(l catalog.Level) string {
	if l == catalog.Graduate {
		return graduateTitle
	}
	return undergraduateTitle
}

// writeProgramEntry renders one program in the listing layout.
func writeProgramEntry(b *strings.Builder, p catalog.Program) {
	fmt.Fprintf(b, "\nNombre de la carrera: %s.\n", p.Name)
	if p.Pricing != nil {
		b.WriteString("1. Precios de la carrera:\n")
		fmt.Fprintf(b, " - Inscripción: %s\n", money(p.Pricing.Enrollment))
		fmt.Fprintf(b, " - Matrícula: %s\n", money(p.Pricing.Tuition))
		if p.Pricing.Installments > 0 {
			fmt.Fprintf(b, " - Cantidad de cuotas: %d\n", p.Pricing.Installments)
		} else {
			fmt.Fprintf(b, " - Cantidad de cuotas: %s\n", notAvailable)
		}
		fmt.Fprintf(b, " - Precio de homologación: %s\n", moneyPtr(p.Pricing.CreditTransfer))
	} else {
		fmt.Fprintf(b, "1. Precios de la carrera: %s\n", notAvailable)
	}
	fmt.Fprintf(b, "2. Sesiones: %s.\n", joinOr(p.Sessions))
	fmt.Fprintf(b, "3. Modalidades: %s.\n", joinOr(p.Modalities))
}

func renderSection(b *strings.Builder, title string, programs []catalog.Program) {
	b.WriteString(title)
	for _, p := range programs {
		writeProgramEntry(b, p)
	}
}

// renderListing lists every program in catalog order.
func renderListing(cat *catalog.Catalog) string {
	if cat.Len() == 0 {
		return noProgramsText
	}
	var b strings.Builder
	if len(cat.Undergraduate) > 0 {
		renderSection(&b, undergraduateTitle, cat.Undergraduate)
	}
	if len(cat.Graduate) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		renderSection(&b, graduateTitle, cat.Graduate)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSingleListing(p catalog.Program, lvl catalog.Level) string {
	var b strings.Builder
	renderSection(&b, levelTitle(lvl), []catalog.Program{p})
	return strings.TrimRight(b.String(), "\n")
}

func renderDetail(p catalog.Program, lvl catalog.Level) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)\n", p.Name, lvl.Label())
	fmt.Fprintf(&b, "- Modalidades: %s\n", joinOr(p.Modalities))
	fmt.Fprintf(&b, "- Sesiones: %s\n", joinOr(p.Sessions))
	if p.Pricing != nil {
		fmt.Fprintf(&b, "- Inscripción: %s\n", money(p.Pricing.Enrollment))
		fmt.Fprintf(&b, "- Matrícula: %s\n", money(p.Pricing.Tuition))
		if p.Pricing.Installments > 0 {
			fmt.Fprintf(&b, "- Cuotas: %d\n", p.Pricing.Installments)
		}
		if p.Pricing.CreditTransfer != nil {
			fmt.Fprintf(&b, "- Homologación: %s\n", moneyPtr(p.Pricing.CreditTransfer))
		}
	} else {
		fmt.Fprintf(&b, "- Precios: %s\n", notAvailable)
	}
	b.WriteString("\n")
	b.WriteString(nextStepQuestion)
	return b.String()
}

func renderGroups(programName string, groups []catalog.Group) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Los grupos disponibles de %s son:\n", programName)
	for i, g := range groups {
		if i == groupPreview {
			break
		}
		capacity := notAvailable
		if g.Capacity > 0 {
			capacity = strconv.Itoa(g.Capacity)
		}
		fmt.Fprintf(&b, "- Paralelo: %s, Modalidad: %s, Cupos: %s, Inicio de clases aproximado: %s, Sesión: %s\n",
			orNA(g.Section), orNA(g.Modality), capacity, orNA(g.StartDate), orNA(g.Session))
	}
	if extra := len(groups) - groupPreview; extra > 0 {
		if extra == 1 {
			b.WriteString("... y 1 grupo más.\n")
		} else {
			fmt.Fprintf(&b, "... y %d grupos más.\n", extra)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func writeCourse(b *strings.Builder, c catalog.Course) {
	fmt.Fprintf(b, "- %s (%s horas", c.Name, hours(c.Hours))
	if c.Credits != nil {
		fmt.Fprintf(b, ", %d créditos", *c.Credits)
	}
	b.WriteString(")\n")
}

func levelLabel(lvl catalog.CurriculumLevel, i int) string {
	if strings.TrimSpace(lvl.Label) == "" {
		return strconv.Itoa(i + 1)
	}
	return lvl.Label
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

// renderCurriculum renders levels in the given view. Unknown views render
// the summary.
func renderCurriculum(programName string, levels []catalog.CurriculumLevel, view string) string {
	switch view {
	case ViewFull:
		return renderCurriculumFull(programName, levels)
	case ViewOverview:
		return renderCurriculumOverview(programName, levels)
	default:
		return renderCurriculumSummary(programName, levels)
	}
}

func renderCurriculumSummary(programName string, levels []catalog.CurriculumLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "La malla curricular de %s tiene %s. Cada período equivale a un semestre académico.\n",
		programName, plural(len(levels), "período", "períodos"))
	for i, lvl := range levels {
		if i == summaryLevels {
			break
		}
		fmt.Fprintf(&b, "\n### Período: %s\n", levelLabel(lvl, i))
		for j, c := range lvl.Courses {
			if j == summaryCourses {
				break
			}
			writeCourse(&b, c)
		}
		if extra := len(lvl.Courses) - summaryCourses; extra > 0 {
			fmt.Fprintf(&b, "... y %s más\n", plural(extra, "asignatura", "asignaturas"))
		}
	}
	if extra := len(levels) - summaryLevels; extra > 0 {
		fmt.Fprintf(&b, "\n... y %s más.\n", plural(extra, "período", "períodos"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCurriculumFull(programName string, levels []catalog.CurriculumLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "La malla curricular de %s es la siguiente:\n", programName)
	for i, lvl := range levels {
		fmt.Fprintf(&b, "\n### Período: %s\n", levelLabel(lvl, i))
		for _, c := range lvl.Courses {
			writeCourse(&b, c)
		}
	}
	t := catalog.Totals(levels)
	fmt.Fprintf(&b, "\nTotal: %s, %s en %s.",
		plural(t.Courses, "asignatura", "asignaturas"),
		plural(t.Credits, "crédito", "créditos"),
		plural(t.Levels, "período", "períodos"))
	return b.String()
}

func renderCurriculumOverview(programName string, levels []catalog.CurriculumLevel) string {
	var b strings.Builder
	t := catalog.Totals(levels)
	fmt.Fprintf(&b, "La malla curricular de %s tiene %s, %s y %s.\n",
		programName,
		plural(t.Levels, "período", "períodos"),
		plural(t.Courses, "asignatura", "asignaturas"),
		plural(t.Credits, "crédito", "créditos"))
	for i, lvl := range levels {
		if i == overviewLevels {
			break
		}
		fmt.Fprintf(&b, "- Período %s: %s\n", levelLabel(lvl, i), plural(len(lvl.Courses), "asignatura", "asignaturas"))
	}
	var examples []string
	for _, lvl := range levels {
		for _, c := range lvl.Courses {
			if len(examples) == overviewExamples {
				break
			}
			examples = append(examples, c.Name)
		}
	}
	if len(examples) > 0 {
		fmt.Fprintf(&b, "Algunas asignaturas: %s.\n", strings.Join(examples, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRequirements(title string, lvl catalog.Level, email string) string {
	docs := undergraduateDocuments
	if lvl == catalog.Graduate {
		docs = graduateDocuments
	}
	return title + "\n\n" +
		"**Documentos:**\n" + docs + "\n\n" +
		"**Proceso:**\n" + admissionProcess + "\n\n" +
		"Para más información escríbenos a " + email + "."
}
