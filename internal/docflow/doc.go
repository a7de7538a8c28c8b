// Package docflow turns bitable data into Feishu documents.
//
// BuildContext reads a table and shapes it into a template context,
// Generator renders a template against that context, and Publisher converts
// the resulting markdown into docx blocks and appends them in paced batches.
//
// Example usage:
//
//	publisher := docflow.NewPublisher(client, logger)
//	gen := docflow.NewGenerator(publisher, logger)
//
//	res, err := gen.FromBitable(ctx, client, appToken, tableID, "templates/weekly.md",
//	    docflow.ContextOptions{GroupBy: "负责人"},
//	    docflow.GenerateOptions{Publish: true},
//	)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.URL)
package docflow
