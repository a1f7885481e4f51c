package capability

import "fmt"

// Fixed replies.
const (
	notFoundText = "Lo siento, no encontré esa carrera en nuestra base de datos. " +
		"¿Podrías verificar si está bien escrita o prefieres que te liste todas las carreras disponibles?"

	unavailableText = "Lo siento, en este momento no puedo consultar la información de la universidad. " +
		"Por favor intenta de nuevo en unos minutos."

	noProgramsText = "En este momento no hay carreras publicadas. Por favor intenta de nuevo más tarde."

	noGroupsText = "No hay grupos disponibles que inicien clases próximamente."

	noCurriculumText = "No hay malla curricular disponible para esta carrera."

	enrollPromptText = "¡Con gusto te ayudo con tu matrícula! ¿En qué carrera te gustaría matricularte? " +
		"Si aún no lo decides, puedo mostrarte todas las carreras disponibles."

	nextStepQuestion = "¿Te gustaría conocer la malla curricular, los grupos disponibles o iniciar tu matrícula?"
)

func outOfScopeText(email string) string {
	return "¡Hola! Soy Dr. Matrícula, el asistente de admisiones de la Universidad Bolivariana del Ecuador (UBE).\n" +
		"Puedo ayudarte con:\n" +
		"- Carreras de grado y postgrado\n" +
		"- Mallas curriculares\n" +
		"- Grupos disponibles\n" +
		"- Requisitos y proceso de admisión\n" +
		"- Matrículas\n\n" +
		"Para otros temas, escríbenos a " + email + "."
}

func enrollFailedText(programName, email string) string {
	return fmt.Sprintf("Lo siento, no pude registrar tu matrícula en %s en este momento. "+
		"Por favor contacta a Admisiones en %s y con gusto te ayudarán a completarla.", programName, email)
}

func enrollConfirmationText(programName, link, email string) string {
	return fmt.Sprintf("¡Listo! Registramos tu solicitud de matrícula en **%s**.\n\n"+
		"Próximos pasos:\n"+
		"1. Realiza el pago de inscripción en el siguiente enlace: %s\n"+
		"2. Envía tu documentación a Admisiones.\n"+
		"3. Recibirás la confirmación de tu matrícula por correo.\n\n"+
		"Si tienes dudas, escríbenos a %s.", programName, link, email)
}

const (
	undergraduateDocuments = "- Cédula de identidad o pasaporte vigente (copia a color)\n" +
		"- Título de bachiller o acta de grado refrendada\n" +
		"- Certificado de votación vigente (ecuatorianos)\n" +
		"- Dos fotografías tamaño carné\n" +
		"- Formulario de inscripción completo"

	graduateDocuments = "- Cédula de identidad o pasaporte vigente (copia a color)\n" +
		"- Título de tercer nivel registrado en la SENESCYT\n" +
		"- Hoja de vida actualizada\n" +
		"- Dos fotografías tamaño carné\n" +
		"- Formulario de inscripción completo"

	admissionProcess = "1. Elige tu carrera, modalidad y sesión.\n" +
		"2. Completa el formulario de inscripción y paga el valor de inscripción.\n" +
		"3. Entrega tus documentos en Admisiones.\n" +
		"4. Formaliza tu matrícula y recibe tu horario."
)
