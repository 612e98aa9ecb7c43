// Package tarefa holds the data model shared by the scheduler, the provisioning
// service and the record stores: subtask kinds, task identifiers, subtask
// records, periods and the error taxonomy.
package tarefa
