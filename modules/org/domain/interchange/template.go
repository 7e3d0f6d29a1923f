package interchange

import "strconv"

func intPtr(v int) *int { return &v }

// TemplateRows is the example sheet handed out to people preparing an
// import: one row per hierarchy level, reporting lines included.
func TemplateRows() []TabularRow {
	rows := []TabularRow{
		{ID: "DIR001", Title: "Director General", Department: "Direccion", Level: intPtr(1), Responsibilities: "Direccion estrategica de la organizacion", CurrentEmployee: "Juan Perez"},
		{ID: "GER001", Title: "Gerente de Operaciones", Department: "Operaciones", ParentID: "DIR001", Level: intPtr(2), Responsibilities: "Gestion de operaciones diarias", CurrentEmployee: "Maria Garcia"},
		{ID: "GER002", Title: "Gerente de Finanzas", Department: "Finanzas", ParentID: "DIR001", Level: intPtr(2), Responsibilities: "Control financiero y presupuesto", CurrentEmployee: VacantLabel},
		{ID: "SUP001", Title: "Supervisor de Produccion", Department: "Operaciones", ParentID: "GER001", Level: intPtr(3), Responsibilities: "Supervision de lineas de produccion", CurrentEmployee: "Carlos Lopez"},
		{ID: "EMP001", Title: "Operador", Department: "Operaciones", ParentID: "SUP001", Level: intPtr(4), Responsibilities: "Operacion de maquinaria", CurrentEmployee: VacantLabel},
	}
	for i := range rows {
		rows[i].Row = i + 1
		rows[i].Line = i + 2
	}
	return rows
}

// Cells returns the row in AllColumns order.
func (r TabularRow) Cells() []string {
	level := ""
	if r.Level != nil {
		level = strconv.Itoa(*r.Level)
	}
	return []string{r.ID, r.Title, r.Department, r.ParentID, level, r.Responsibilities, r.CurrentEmployee}
}
