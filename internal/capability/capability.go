// Package capability implements the closed set of operations the assistant
// can perform. Each capability takes one string argument and returns
// human-readable Spanish text; failures are reported in-band, never as errors.
package capability

// Capability identifies one operation.
type Capability int

const (
	ListPrograms Capability = iota
	ProgramDetail
	Groups
	Curriculum
	AdmissionRequirements
	Enroll
	OutOfScope
)

// All lists every capability in declaration order.
func All() []Capability {
	return []Capability{ListPrograms, ProgramDetail, Groups, Curriculum, AdmissionRequirements, Enroll, OutOfScope}
}

// String returns the tool name.
func (c Capability) String() string {
	switch c {
	case ListPrograms:
		return "list_programs"
	case ProgramDetail:
		return "program_detail"
	case Groups:
		return "groups"
	case Curriculum:
		return "curriculum"
	case AdmissionRequirements:
		return "admission_requirements"
	case Enroll:
		return "enroll"
	case OutOfScope:
		return "out_of_scope"
	default:
		return "unknown"
	}
}

// Parse maps a tool name back to its capability.
func Parse(name string) (Capability, bool) {
	switch name {
	case "list_programs":
		return ListPrograms, true
	case "program_detail":
		return ProgramDetail, true
	case "groups":
		return Groups, true
	case "curriculum":
		return Curriculum, true
	case "admission_requirements":
		return AdmissionRequirements, true
	case "enroll":
		return Enroll, true
	case "out_of_scope":
		return OutOfScope, true
	default:
		return 0, false
	}
}

// ArgName is the name of the single argument every capability accepts.
const ArgName = "program"

// Spec describes a capability to the reasoning loop.
type Spec struct {
	Capability     Capability
	Description    string
	ArgName        string
	ArgDescription string
	ArgRequired    bool
}

// Name returns the tool name.
func (s Spec) Name() string {
	return s.Capability.String()
}

// Specs returns the tool descriptions in declaration order.
func Specs() []Spec {
	return []Spec{
		{
			Capability:     ListPrograms,
			Description:    "Lista las carreras de grado y postgrado de la UBE con precios, sesiones y modalidades. Úsala cuando pregunten qué carreras hay o por la oferta académica.",
			ArgName:        ArgName,
			ArgDescription: "Nombre de una carrera para mostrar solo esa. Vacío para listar todas.",
		},
		{
			Capability:     ProgramDetail,
			Description:    "Detalle de una carrera: nivel, precios, modalidades y sesiones.",
			ArgName:        ArgName,
			ArgDescription: "Nombre de la carrera tal como lo escribió el usuario. Ejemplo: «derecho», «psicología clínica».",
			ArgRequired:    true,
		},
		{
			Capability:     Groups,
			Description:    "Grupos o paralelos con inicio de clases próximo para una carrera, con cupos, modalidad y sesión.",
			ArgName:        ArgName,
			ArgDescription: "Nombre de la carrera. Ejemplo: «fisioterapia».",
			ArgRequired:    true,
		},
		{
			Capability:     Curriculum,
			Description:    "Malla curricular de una carrera: asignaturas por período (semestre), horas y créditos.",
			ArgName:        ArgName,
			ArgDescription: "Nombre de la carrera. Ejemplo: «enfermería».",
			ArgRequired:    true,
		},
		{
			Capability:     AdmissionRequirements,
			Description:    "Requisitos, documentos y pasos del proceso de admisión.",
			ArgName:        ArgName,
			ArgDescription: "Carrera de interés, si el usuario la menciona.",
		},
		{
			Capability:     Enroll,
			Description:    "Inicia la matrícula del usuario en una carrera y genera el enlace de pago.",
			ArgName:        ArgName,
			ArgDescription: "Carrera en la que se quiere matricular. Vacío si no la indicó.",
		},
		{
			Capability:  OutOfScope,
			Description: "Saludos y cualquier consulta que no trate de carreras, mallas, grupos, admisión o matrícula de la UBE.",
		},
	}
}
