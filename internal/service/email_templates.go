package service

import "fmt"

func welcomeEmailTemplate(email, appURL, appName string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s!", appName)
	body := fmt.Sprintf(`Hi,

Your account %s is ready. Add your first habit with:

    habits add "Read 20 pages"

Tick it off each day with "habits done" and check your streaks with
"habits stats".

Server: %s

Best,
The %s Team`, email, appURL, appName)

	return subject, body
}
