package ubeapi

import (
	"strings"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
)

// Wire types mirror the backend JSON. They are mapped into catalog types
// immediately after decoding.

type envelope[T any] struct {
	Data T `json:"data"`
}

type wireCatalog struct {
	Grado     []wireProgram `json:"grado"`
	Postgrado []wireProgram `json:"postgrado"`
}

type wirePricing struct {
	Inscripcion  float64  `json:"inscripcion"`
	Matricula    float64  `json:"matricula"`
	NumeroCuotas int      `json:"numero_cuotas"`
	Homologacion *float64 `json:"homologacion"`
}

type wireProgram struct {
	ID          int          `json:"id"`
	Nombre      string       `json:"nombre"`
	Sesiones    []string     `json:"sesiones"`
	Modalidades []string     `json:"modalidades"`
	Precios     *wirePricing `json:"precios"`
}

type wireGroup struct {
	Carrera     string `json:"carrera"`
	Nombre      string `json:"nombre"`
	FechaInicio string `json:"fecha_inicio"`
	FechaFin    string `json:"fecha_fin"`
	Capacidad   int    `json:"capacidad"`
	Sesion      string `json:"sesion"`
	Modalidad   string `json:"modalidad"`
	Nivel       string `json:"nivel"`
}

type wireCourse struct {
	Asignatura string  `json:"asignatura"`
	Horas      float64 `json:"horas"`
	Creditos   *int    `json:"creditos"`
}

type wireLevel struct {
	NivelMalla  string       `json:"nivel_malla"`
	Asignaturas []wireCourse `json:"asignaturas"`
}

type enrollmentRequest struct {
	Aprove    bool `json:"aprove"`
	IDCarrera int  `json:"id_carrera"`
}

type enrollmentResponse struct {
	Status string `json:"status"`
}

func (w wireProgram) toProgram() catalog.Program {
	p := catalog.Program{
		ID:         w.ID,
		Name:       strings.TrimSpace(w.Nombre),
		Sessions:   w.Sesiones,
		Modalities: w.Modalidades,
	}
	if w.Precios != nil {
		p.Pricing = &catalog.Pricing{
			Enrollment:     w.Precios.Inscripcion,
			Tuition:        w.Precios.Matricula,
			Installments:   w.Precios.NumeroCuotas,
			CreditTransfer: w.Precios.Homologacion,
		}
	}
	return p
}

func (w wireCatalog) toCatalog() *catalog.Catalog {
	c := &catalog.Catalog{
		Undergraduate: make([]catalog.Program, 0, len(w.Grado)),
		Graduate:      make([]catalog.Program, 0, len(w.Postgrado)),
	}
	for _, p := range w.Grado {
		c.Undergraduate = append(c.Undergraduate, p.toProgram())
	}
	for _, p := range w.Postgrado {
		c.Graduate = append(c.Graduate, p.toProgram())
	}
	return c
}

func toGroups(in []wireGroup) []catalog.Group {
	out := make([]catalog.Group, 0, len(in))
	for _, g := range in {
		out = append(out, catalog.Group{
			Program:   g.Carrera,
			Section:   g.Nombre,
			StartDate: g.FechaInicio,
			EndDate:   g.FechaFin,
			Capacity:  g.Capacidad,
			Session:   g.Sesion,
			Modality:  g.Modalidad,
			Level:     g.Nivel,
		})
	}
	return out
}

func toCurriculum(in []wireLevel) []catalog.CurriculumLevel {
	out := make([]catalog.CurriculumLevel, 0, len(in))
	for _, lvl := range in {
		courses := make([]catalog.Course, 0, len(lvl.Asignaturas))
		for _, c := range lvl.Asignaturas {
			courses = append(courses, catalog.Course{Name: c.Asignatura, Hours: c.Horas, Credits: c.Creditos})
		}
		out = append(out, catalog.CurriculumLevel{Label: lvl.NivelMalla, Courses: courses})
	}
	return out
}
